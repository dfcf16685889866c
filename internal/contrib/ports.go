package contrib

import (
	"context"
	"time"

	"portfolio/internal/amqp"
	"portfolio/internal/core"
)

// CalendarFetcher supplies the contribution calendar of an identity for the
// window [from, to]. Implementations should report failures as *core.FetchError.
type CalendarFetcher interface {
	FetchCalendar(ctx context.Context, identity string, from, to time.Time) (core.ContributionCalendar, error)
}

// SnapshotPublisher receives a snapshot of every successful summary.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, msg amqp.SnapshotMessage) error
}
