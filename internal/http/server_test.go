package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"portfolio/internal/content"
	"portfolio/internal/content/memory"
	"portfolio/internal/contrib"
	"portfolio/internal/core"
	"portfolio/internal/github"
	"portfolio/internal/log"
)

var fixedNow = time.Date(2025, time.March, 14, 15, 4, 5, 0, time.UTC)

type fakeContributions struct {
	res       contrib.Result
	err       error
	identity  string
	callCount int
}

func (f *fakeContributions) GetContributionSummary(_ context.Context, identity string, _ time.Time) (contrib.Result, error) {
	f.identity = identity
	f.callCount++
	return f.res, f.err
}

type fakeStats struct {
	stats github.UserStats
	err   error
}

func (f fakeStats) FetchUserStats(_ context.Context, login string) (github.UserStats, error) {
	if f.err != nil {
		return github.UserStats{}, f.err
	}
	s := f.stats
	s.Login = login
	return s, nil
}

type calendarFunc func(ctx context.Context, identity string, from, to time.Time) (core.ContributionCalendar, error)

func (f calendarFunc) FetchCalendar(ctx context.Context, identity string, from, to time.Time) (core.ContributionCalendar, error) {
	return f(ctx, identity, from, to)
}

// lookupStore serves the test catalog but fails single-item lookups with err.
type lookupStore struct {
	*memory.Store
	err error
}

func (l lookupStore) Project(context.Context, int) (core.Project, error) {
	return core.Project{}, l.err
}

func (l lookupStore) Blog(context.Context, string) (core.BlogPost, error) {
	return core.BlogPost{}, l.err
}

func testCatalog() core.Catalog {
	return core.Catalog{
		Profile: core.Profile{Name: "Ada Tester", Tagline: "Builds things", GitHubLogin: "ada-t"},
		Projects: []core.Project{
			{ID: 1, Title: "Alpha", Description: "first", Tech: []string{"Go"}},
			{ID: 2, Title: "Beta", Description: "second"},
			{ID: 3, Title: "Gamma", Description: "third"},
			{ID: 4, Title: "Delta", Description: "fourth"},
		},
		Blogs: []core.BlogPost{
			{ID: "old", Title: "Old post", Date: "2023-01-02", Tags: []string{"go"}},
			{ID: "new", Title: "New post", Date: "2024-05-06", Tags: []string{"web"}},
			{ID: "mid", Title: "Mid post", Date: "2023-09-09", Tags: []string{"go", "web"}},
		},
		Skills: []core.Skill{
			{Key: "go", Name: "Go", Group: "Backend"},
			{Key: "css", Name: "CSS", Group: "Frontend"},
		},
	}
}

func okResult() contrib.Result {
	return contrib.Result{
		Status:   contrib.StatusOK,
		Identity: "ada-t",
		Year:     2025,
		Buckets: []core.MonthBucket{
			{MonthIndex: 0, Label: "Jan", Count: 3},
			{MonthIndex: 1, Label: "Feb", Count: 0},
			{MonthIndex: 2, Label: "Mar", Count: 12},
		},
		Summary:     core.Summary{Total: 15, Max: 12},
		GeneratedAt: fixedNow,
	}
}

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Contributions: &fakeContributions{res: okResult()},
		Content:       memory.New(testCatalog()),
		Logger:        log.New(log.Config{Component: log.ComponentHTTP, Output: io.Discard}),
		Now:           func() time.Time { return fixedNow },
		NewRand:       func() *rand.Rand { return rand.New(rand.NewSource(1)) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := NewServer(opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestReady_WithoutContributionsService(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.Contributions = nil })

	rec := do(t, s, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestContributionsAPI_OK(t *testing.T) {
	fake := &fakeContributions{res: okResult()}
	s := newTestServer(t, func(o *Options) { o.Contributions = fake })

	rec := do(t, s, http.MethodGet, "/api/contributions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ada-t", fake.identity, "falls back to the profile login")

	body := decodeJSON(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["buckets"], 3)
	assert.Equal(t, map[string]any{"total": float64(15), "max": float64(12)}, body["summary"])
}

func TestContributionsAPI_ConfiguredIdentityWins(t *testing.T) {
	fake := &fakeContributions{res: okResult()}
	s := newTestServer(t, func(o *Options) {
		o.Contributions = fake
		o.Identity = "configured"
	})

	do(t, s, http.MethodGet, "/api/contributions")
	assert.Equal(t, "configured", fake.identity)

	do(t, s, http.MethodGet, "/api/contributions?login=octocat")
	assert.Equal(t, "octocat", fake.identity)
}

func TestContributionsAPI_InvalidLogin(t *testing.T) {
	fake := &fakeContributions{res: okResult()}
	s := newTestServer(t, func(o *Options) { o.Contributions = fake })

	for _, login := range []string{"-bad", "a--b", "has%20space", strings.Repeat("a", 40)} {
		rec := do(t, s, http.MethodGet, "/api/contributions?login="+login)
		assert.Equal(t, http.StatusBadRequest, rec.Code, login)
	}
	assert.Zero(t, fake.callCount)
}

func TestContributionsAPI_Unavailable(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Contributions = &fakeContributions{res: contrib.Result{
			Status:   contrib.StatusUnavailable,
			Identity: "ada-t",
			Year:     2025,
			Cause:    core.NewFetchError("ada-t", core.FetchRateLimited, errors.New("slow down")),
		}}
	})

	rec := do(t, s, http.MethodGet, "/api/contributions")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	body := decodeJSON(t, rec)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "rate_limited", body["reason"])
	assert.NotContains(t, body, "buckets")
}

func TestContributionsAPI_DataFormatError(t *testing.T) {
	dfe := &core.DataFormatError{Week: 0, Day: 2, Date: "2025-13-01", Reason: "unparseable date"}
	s := newTestServer(t, func(o *Options) {
		o.Contributions = &fakeContributions{err: dfe}
	})

	rec := do(t, s, http.MethodGet, "/api/contributions")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "invalid_data", body["status"])
	assert.Contains(t, body["error"], "2025-13-01")
}

func TestContributionsAPI_OtherError(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Contributions = &fakeContributions{err: errors.New("boom")}
	})

	rec := do(t, s, http.MethodGet, "/api/contributions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContributionsAPI_EndToEnd(t *testing.T) {
	fetcher := calendarFunc(func(_ context.Context, _ string, from, to time.Time) (core.ContributionCalendar, error) {
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, fixedNow, to)
		return core.ContributionCalendar{Weeks: []core.ContributionWeek{
			{Days: []core.ContributionDay{{Date: "2025-01-05", Count: 2}, {Date: "2025-03-01", Count: 4}}},
		}}, nil
	})
	svc := contrib.NewService(fetcher, contrib.WithLogger(log.New(log.Config{Output: io.Discard})))
	s := newTestServer(t, func(o *Options) { o.Contributions = svc })

	rec := do(t, s, http.MethodGet, "/api/contributions")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Buckets []core.MonthBucket `json:"buckets"`
		Summary core.Summary       `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Buckets, 3)
	assert.Equal(t, []int{2, 0, 4}, []int{res.Buckets[0].Count, res.Buckets[1].Count, res.Buckets[2].Count})
	assert.Equal(t, core.Summary{Total: 6, Max: 4}, res.Summary)
}

func TestContributionsPartial(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/ui/contributions")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bar--peak")
	assert.Contains(t, body, "bar--none")
	assert.Contains(t, body, "height: 25%")
	assert.Contains(t, body, "15 contributions in 2025")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestContributionsPartial_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeContributions
	}{
		{name: "unavailable", fake: &fakeContributions{res: contrib.Result{Status: contrib.StatusUnavailable}}},
		{name: "data format error", fake: &fakeContributions{err: &core.DataFormatError{Reason: "bad"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(o *Options) { o.Contributions = tt.fake })

			rec := do(t, s, http.MethodGet, "/ui/contributions")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "Contribution data is unavailable right now.")
			assert.NotContains(t, rec.Body.String(), "class=\"bars\"")
		})
	}
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Stats = fakeStats{stats: github.UserStats{PublicRepos: 17, Followers: 5}}
	})

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Tester")
	assert.Contains(t, body, "<strong>17</strong> repositories")
	assert.Contains(t, body, "Alpha")
	assert.Contains(t, body, "Gamma")
	assert.NotContains(t, body, "Delta", "only three featured projects")
	assert.Contains(t, body, "New post")
	assert.Contains(t, body, "03:04:05 PM")
	assert.Contains(t, body, `hx-get="/ui/contributions"`)
}

func TestIndex_StatsFailureStillRenders(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Stats = fakeStats{err: errors.New("github down")}
	})

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "repositories")
}

func TestProjects(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/projects")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, title := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		assert.Contains(t, rec.Body.String(), title)
	}
}

func TestProjectDetail(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/projects/2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Beta</h1>")
	assert.Contains(t, body, "More projects")
	assert.Equal(t, 2, strings.Count(body, `class="card"`))
	assert.NotContains(t, body, `href="/projects/2"`)
}

func TestProjectDetail_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/projects/99").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/projects/abc").Code)
}

func TestBlogs_TagFilter(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/blogs?tag=go")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Old post")
	assert.Contains(t, body, "Mid post")
	assert.NotContains(t, body, "New post")
	assert.Less(t, strings.Index(body, "Mid post"), strings.Index(body, "Old post"), "newest first")
}

func TestBlogDetail(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/blogs/mid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Keep reading")
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `class="card"`))

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/blogs/missing").Code)
}

func TestDetailPages_LookupErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target string
		want   int
	}{
		{name: "project not found", err: fmt.Errorf("project 1: %w", content.ErrNotFound), target: "/projects/1", want: http.StatusNotFound},
		{name: "project store failure", err: errors.New("disk gone"), target: "/projects/1", want: http.StatusInternalServerError},
		{name: "blog not found", err: fmt.Errorf("blog %q: %w", "mid", content.ErrNotFound), target: "/blogs/mid", want: http.StatusNotFound},
		{name: "blog store failure", err: errors.New("disk gone"), target: "/blogs/mid", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(o *Options) {
				o.Content = lookupStore{Store: memory.New(testCatalog()), err: tt.err}
			})

			rec := do(t, s, http.MethodGet, tt.target)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestClock(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/ui/clock")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "03:04:05 PM")
	assert.Contains(t, rec.Body.String(), `hx-trigger="every 1s"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/nope")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Len(t, rec.Header().Get(headerRequestID), 36)
}

func TestMethodNotAllowed_RunsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, func(o *Options) { o.Registry = reg })

	rec := do(t, s, http.MethodPost, "/projects")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Len(t, rec.Header().Get(headerRequestID), 36)

	do(t, s, http.MethodGet, "/nope")
	metrics := do(t, s, http.MethodGet, "/metrics").Body.String()
	assert.Contains(t, metrics, `route="unmatched",status="404"`)
	assert.Contains(t, metrics, `route="unmatched",status="405"`)
}

func TestMiddleware_HeadersAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/projects")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Len(t, rec.Header().Get(headerRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}

func TestMiddleware_RateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/projects").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/projects").Code)
	rec := do(t, s, http.MethodGet, "/projects")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz").Code, "probes are not limited")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, func(o *Options) { o.Registry = reg })

	do(t, s, http.MethodGet, "/projects/1")

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `portfolio_http_requests_total{method="GET",route="/projects/{id:[0-9]+}",status="200"} 1`)
}

func TestMetricsEndpoint_DisabledWithoutRegistry(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics").Code)
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/static/app.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")
	assert.Contains(t, rec.Body.String(), ".bar--peak")
}

func TestPanicRecovery(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Contributions = panicking{}
	})

	rec := do(t, s, http.MethodGet, "/api/contributions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicking struct{}

func (panicking) GetContributionSummary(context.Context, string, time.Time) (contrib.Result, error) {
	panic("kaboom")
}

func TestShutdownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestServer(t, func(o *Options) { o.RateLimitRPS = 1 })
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
