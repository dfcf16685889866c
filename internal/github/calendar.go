package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"portfolio/internal/core"
	"portfolio/internal/log"
)

type CalendarConfig struct {
	Endpoint  string
	Token     string
	RateLimit float64 // requests per second
	Timeout   time.Duration
	// HTTPClient overrides the base client; its transport is wrapped.
	HTTPClient *http.Client
}

// CalendarClient fetches contribution calendars from the GitHub GraphQL API.
type CalendarClient struct {
	client *githubv4.Client
	logger *log.Logger
}

func NewCalendarClient(cfg CalendarConfig, logger *log.Logger) *CalendarClient {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentGitHub})
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	next := base.Transport
	if cfg.Token != "" {
		next = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   base.Transport,
		}
	}
	client := &http.Client{
		Transport: &apiTransport{
			base:    next,
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	return &CalendarClient{
		client: githubv4.NewEnterpriseClient(cfg.Endpoint, client),
		logger: logger,
	}
}

type contributionDay struct {
	Date              githubv4.String
	ContributionCount githubv4.Int
}

type calendarQuery struct {
	User struct {
		Login                   githubv4.String
		ContributionsCollection struct {
			ContributionCalendar struct {
				TotalContributions githubv4.Int
				Weeks              []struct {
					ContributionDays []contributionDay
				}
			}
		} `graphql:"contributionsCollection(from: $from, to: $to)"`
	} `graphql:"user(login: $login)"`
}

func (q *calendarQuery) calendar() core.ContributionCalendar {
	src := q.User.ContributionsCollection.ContributionCalendar
	cal := core.ContributionCalendar{
		TotalContributions: int(src.TotalContributions),
		Weeks:              make([]core.ContributionWeek, 0, len(src.Weeks)),
	}
	for _, w := range src.Weeks {
		days := make([]core.ContributionDay, 0, len(w.ContributionDays))
		for _, d := range w.ContributionDays {
			days = append(days, core.ContributionDay{Date: string(d.Date), Count: int(d.ContributionCount)})
		}
		cal.Weeks = append(cal.Weeks, core.ContributionWeek{Days: days})
	}
	return cal
}

// FetchCalendar returns the contribution calendar of login between from and to.
// Every failure is a *core.FetchError; requests are never retried.
func (c *CalendarClient) FetchCalendar(ctx context.Context, login string, from, to time.Time) (core.ContributionCalendar, error) {
	var q calendarQuery
	vars := map[string]any{
		"login": githubv4.String(login),
		"from":  githubv4.DateTime{Time: from.UTC()},
		"to":    githubv4.DateTime{Time: to.UTC()},
	}

	start := time.Now()
	if err := c.client.Query(ctx, &q, vars); err != nil {
		return c.fail(ctx, login, classify(err), err)
	}
	// A null user decodes to the zero value.
	if q.User.Login == "" {
		return c.fail(ctx, login, core.FetchNotFound, fmt.Errorf("user %q not found", login))
	}

	cal := q.calendar()
	c.logger.DebugContext(ctx, "Fetched contribution calendar",
		log.FieldIdentity, login,
		"weeks", len(cal.Weeks),
		log.FieldDuration, time.Since(start).Milliseconds())
	return cal, nil
}

func (c *CalendarClient) fail(ctx context.Context, login string, kind core.FetchErrorKind, err error) (core.ContributionCalendar, error) {
	c.logger.WarnContext(ctx, "Contribution calendar fetch failed",
		log.FieldIdentity, login,
		log.FieldErrorKind, string(kind),
		log.FieldError, err)
	return core.ContributionCalendar{}, core.NewFetchError(login, kind, err)
}

// statusError is returned by apiTransport for any non-200 response.
type statusError struct {
	Code int
	Kind core.FetchErrorKind
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// apiTransport waits on the rate limiter before each request and turns
// non-200 responses into a *statusError.
type apiTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &statusError{
		Code: resp.StatusCode,
		Kind: statusKind(resp),
		Body: strings.TrimSpace(string(snippet)),
	}
}

func statusKind(resp *http.Response) core.FetchErrorKind {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return core.FetchRateLimited
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return core.FetchRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return core.FetchAuth
	case resp.StatusCode == http.StatusNotFound:
		return core.FetchNotFound
	default:
		return core.FetchNetwork
	}
}

// classify maps an error from githubv4.Client.Query to a fetch error kind.
// Anything that is neither a transport failure nor a known GraphQL error is
// treated as a malformed response.
func classify(err error) core.FetchErrorKind {
	var se *statusError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.FetchNetwork
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return core.FetchNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return core.FetchRateLimited
	case strings.Contains(msg, "could not resolve to a user"):
		return core.FetchNotFound
	case strings.Contains(msg, "resource not accessible"), strings.Contains(msg, "bad credentials"):
		return core.FetchAuth
	default:
		return core.FetchMalformed
	}
}
