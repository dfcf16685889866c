package contrib

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/amqp"
	"portfolio/internal/cache"
	"portfolio/internal/core"
	"portfolio/internal/log"
)

type fakeFetcher struct {
	mu    sync.Mutex
	cal   core.ContributionCalendar
	err   error
	calls int
	from  time.Time
	to    time.Time
}

func (f *fakeFetcher) FetchCalendar(_ context.Context, _ string, from, to time.Time) (core.ContributionCalendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.from, f.to = from, to
	return f.cal, f.err
}

type fakePublisher struct {
	msgs []amqp.SnapshotMessage
	err  error
}

func (p *fakePublisher) PublishSnapshot(_ context.Context, msg amqp.SnapshotMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Component: log.ComponentContrib, Output: io.Discard})
}

func calendarOf(days ...core.ContributionDay) core.ContributionCalendar {
	return core.ContributionCalendar{Weeks: []core.ContributionWeek{{Days: days}}}
}

func TestGetContributionSummary_OK(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{cal: calendarOf(core.ContributionDay{Date: "2025-03-10", Count: 5})}
	svc := NewService(fetcher, WithLogger(quietLogger()))

	res, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.Available())
	assert.Equal(t, "octocat", res.Identity)
	assert.Equal(t, 2025, res.Year)
	require.Len(t, res.Buckets, 6)
	assert.Equal(t, 5, res.Buckets[2].Count)
	assert.Equal(t, core.Summary{Total: 5, Max: 5}, res.Summary)
	assert.Equal(t, now, res.GeneratedAt)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), fetcher.from)
	assert.Equal(t, now, fetcher.to)
}

func TestGetContributionSummary_FetchErrorIsUnavailable(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	fetchErr := core.NewFetchError("octocat", core.FetchRateLimited, errors.New("slow down"))
	pub := &fakePublisher{}
	svc := NewService(&fakeFetcher{err: fetchErr}, WithLogger(quietLogger()), WithPublisher(pub))

	res, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.NoError(t, err)

	assert.Equal(t, StatusUnavailable, res.Status)
	assert.False(t, res.Available())
	assert.Empty(t, res.Buckets)
	assert.Equal(t, 2025, res.Year)
	assert.ErrorIs(t, res.Cause, core.ErrFetch)

	var got *core.FetchError
	require.ErrorAs(t, res.Cause, &got)
	assert.Equal(t, core.FetchRateLimited, got.Kind)
	assert.Empty(t, pub.msgs)
}

func TestGetContributionSummary_UntypedFetchErrorIsWrapped(t *testing.T) {
	svc := NewService(&fakeFetcher{err: errors.New("connection reset")}, WithLogger(quietLogger()))

	res, err := svc.GetContributionSummary(context.Background(), "octocat", time.Now())
	require.NoError(t, err)

	var got *core.FetchError
	require.ErrorAs(t, res.Cause, &got)
	assert.Equal(t, core.FetchNetwork, got.Kind)
	assert.Equal(t, "octocat", got.Identity)
}

func TestGetContributionSummary_DataFormatErrorPropagates(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{cal: calendarOf(core.ContributionDay{Date: "2025-13-40", Count: 1})}
	pub := &fakePublisher{}
	svc := NewService(fetcher, WithLogger(quietLogger()), WithPublisher(pub))

	res, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDataFormat)

	var dfe *core.DataFormatError
	require.ErrorAs(t, err, &dfe)
	assert.Equal(t, "2025-13-40", dfe.Date)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, pub.msgs)
}

func TestGetContributionSummary_PublishesSnapshot(t *testing.T) {
	now := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{cal: calendarOf(
		core.ContributionDay{Date: "2025-02-01", Count: 3},
		core.ContributionDay{Date: "2025-02-28", Count: 7},
	)}
	pub := &fakePublisher{}
	svc := NewService(fetcher, WithLogger(quietLogger()), WithPublisher(pub))

	_, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "octocat", msg.Identity)
	assert.Equal(t, 2025, msg.Year)
	assert.Equal(t, []int{0, 10}, msg.Months)
	assert.Equal(t, 10, msg.Total)
	assert.Equal(t, 10, msg.Max)
}

func TestGetContributionSummary_PublishFailureDoesNotFailRequest(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewService(&fakeFetcher{}, WithLogger(quietLogger()), WithPublisher(pub))

	res, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []core.MonthBucket{{MonthIndex: 0, Label: "Jan", Count: 0}}, res.Buckets)
	assert.Equal(t, core.Summary{}, res.Summary)
	assert.Len(t, pub.msgs, 1)
}

func TestGetContributionSummary_CachesCalendar(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{cal: calendarOf(core.ContributionDay{Date: "2025-03-10", Count: 5})}
	calendars := cache.NewLRUCache[core.ContributionCalendar](10, time.Minute)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := NewService(fetcher, WithLogger(quietLogger()), WithCalendarCache(calendars), WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		res, err := svc.GetContributionSummary(context.Background(), "OctoCat", now)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Summary.Total)
	}
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, calendars.Size())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheHits))
}

func TestGetContributionSummary_FetchErrorsAreNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: core.NewFetchError("octocat", core.FetchNetwork, nil)}
	calendars := cache.NewLRUCache[core.ContributionCalendar](10, time.Minute)
	svc := NewService(fetcher, WithLogger(quietLogger()), WithCalendarCache(calendars))

	for i := 0; i < 2; i++ {
		_, err := svc.GetContributionSummary(context.Background(), "octocat", time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fetcher.calls)
	assert.Zero(t, calendars.Size())
}

func TestGetContributionSummary_InvalidCalendarIsNotCached(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{cal: calendarOf(core.ContributionDay{Date: "2025-13-40", Count: 1})}
	calendars := cache.NewLRUCache[core.ContributionCalendar](10, time.Hour)
	svc := NewService(fetcher, WithLogger(quietLogger()), WithCalendarCache(calendars))

	_, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.ErrorIs(t, err, core.ErrDataFormat)
	assert.Zero(t, calendars.Size())

	fetcher.mu.Lock()
	fetcher.cal = calendarOf(core.ContributionDay{Date: "2025-02-01", Count: 4})
	fetcher.mu.Unlock()

	res, err := svc.GetContributionSummary(context.Background(), "octocat", now)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, 1, calendars.Size())
}

func TestMetricsCountOutcomes(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	metrics := NewMetrics(prometheus.NewRegistry())
	ok := NewService(&fakeFetcher{}, WithLogger(quietLogger()), WithMetrics(metrics))
	down := NewService(&fakeFetcher{err: errors.New("dns")}, WithLogger(quietLogger()), WithMetrics(metrics))
	bad := NewService(&fakeFetcher{cal: calendarOf(core.ContributionDay{Date: "2025-01-01", Count: -1})},
		WithLogger(quietLogger()), WithMetrics(metrics))

	_, _ = ok.GetContributionSummary(context.Background(), "a", now)
	_, _ = ok.GetContributionSummary(context.Background(), "a", now)
	_, _ = down.GetContributionSummary(context.Background(), "a", now)
	_, _ = bad.GetContributionSummary(context.Background(), "a", now)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.summaries.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.summaries.WithLabelValues(OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.summaries.WithLabelValues(OutcomeInvalidData)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeOutcome(OutcomeOK)
		m.observeFetch(0.1)
		m.observeCacheHit()
	})
}
