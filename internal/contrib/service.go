package contrib

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio/internal/amqp"
	"portfolio/internal/cache"
	"portfolio/internal/core"
	"portfolio/internal/log"
)

// Status tells the view whether a summary could be produced.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
)

// Result is the outcome of one contribution summary request. When Status is
// StatusUnavailable only Identity, Year and Cause are set.
type Result struct {
	Status      Status             `json:"status"`
	Identity    string             `json:"identity"`
	Year        int                `json:"year"`
	Buckets     []core.MonthBucket `json:"buckets,omitempty"`
	Summary     core.Summary       `json:"summary"`
	GeneratedAt time.Time          `json:"generated_at"`
	Cause       error              `json:"-"`
}

// Available reports whether the result carries buckets and a summary.
func (r Result) Available() bool {
	return r.Status == StatusOK
}

// Service runs the fetch, aggregate and summarize pipeline.
type Service struct {
	fetcher   CalendarFetcher
	publisher SnapshotPublisher
	calendars cache.Cache[core.ContributionCalendar]
	metrics   *Metrics
	logger    *log.Logger
}

type Option func(*Service)

// WithCalendarCache keeps fetched calendars in c, keyed by identity and year.
func WithCalendarCache(c cache.Cache[core.ContributionCalendar]) Option {
	return func(s *Service) { s.calendars = c }
}

// WithPublisher publishes a snapshot after every successful summary.
func WithPublisher(p SnapshotPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(fetcher CalendarFetcher, opts ...Option) *Service {
	s := &Service{fetcher: fetcher}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Config{Component: log.ComponentContrib})
	}
	return s
}

// GetContributionSummary fetches the calendar of identity for the current UTC
// year up to now and reduces it to monthly buckets and a summary.
//
// A fetch failure is not an error: the result comes back with
// StatusUnavailable and the cause attached. A malformed calendar is returned
// as a *core.DataFormatError with a zero Result.
func (s *Service) GetContributionSummary(ctx context.Context, identity string, now time.Time) (Result, error) {
	now = now.UTC()
	year := now.Year()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	cal, cached, err := s.calendar(ctx, identity, from, now)
	if err != nil {
		var fetchErr *core.FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = core.NewFetchError(identity, core.FetchNetwork, err)
		}
		s.metrics.observeOutcome(OutcomeUnavailable)
		s.logger.WarnContext(ctx, "Contribution calendar unavailable",
			log.FieldIdentity, identity,
			log.FieldErrorKind, string(fetchErr.Kind),
			log.FieldError, fetchErr.Error())
		return Result{Status: StatusUnavailable, Identity: identity, Year: year, Cause: fetchErr}, nil
	}

	buckets, err := core.AggregateMonthly(cal, now)
	if err != nil {
		s.metrics.observeOutcome(OutcomeInvalidData)
		s.logger.LogError(ctx, "Contribution calendar rejected", err, log.OpAggregate,
			log.NewFields().WithSummary(identity, year, 0, 0, 0))
		return Result{}, fmt.Errorf("aggregate contributions for %q: %w", identity, err)
	}
	// Only calendars that aggregate cleanly are kept.
	if s.calendars != nil && !cached {
		s.calendars.Set(cacheKey(identity, year), cal)
	}
	summary := core.Summarize(buckets)

	res := Result{
		Status:      StatusOK,
		Identity:    identity,
		Year:        year,
		Buckets:     buckets,
		Summary:     summary,
		GeneratedAt: now,
	}
	s.metrics.observeOutcome(OutcomeOK)
	s.logger.DebugContext(ctx, "Contribution summary ready",
		log.NewFields().WithSummary(identity, year, len(buckets), summary.Total, summary.Max).ToSlice()...)

	s.publish(ctx, res)
	return res, nil
}

// calendar returns the cached calendar when present, otherwise fetches it.
// cached reports which; fetched calendars are not stored here.
func (s *Service) calendar(ctx context.Context, identity string, from, to time.Time) (cal core.ContributionCalendar, cached bool, err error) {
	if s.calendars != nil {
		if cal, ok := s.calendars.Get(cacheKey(identity, from.Year())); ok {
			s.metrics.observeCacheHit()
			s.logger.DebugContext(ctx, "Contribution calendar served from cache",
				log.FieldIdentity, identity, log.FieldCacheHit, true)
			return cal, true, nil
		}
	}

	start := time.Now()
	cal, err = s.fetcher.FetchCalendar(ctx, identity, from, to)
	s.metrics.observeFetch(time.Since(start).Seconds())
	if err != nil {
		return core.ContributionCalendar{}, false, err
	}
	return cal, false, nil
}

func (s *Service) publish(ctx context.Context, res Result) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewSnapshotMessage(res.Identity, res.Year, res.Buckets, res.Summary, res.GeneratedAt)
	if err := s.publisher.PublishSnapshot(ctx, msg); err != nil {
		// The summary is still served.
		s.logger.LogError(ctx, "Failed to publish contribution snapshot", err, log.OpPublish,
			log.NewFields().WithSummary(res.Identity, res.Year, len(res.Buckets), res.Summary.Total, res.Summary.Max))
	}
}

func cacheKey(identity string, year int) string {
	return strings.ToLower(identity) + "@" + strconv.Itoa(year)
}
