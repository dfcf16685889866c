package sheets

import (
	"context"
	"time"

	"portfolio/internal/core"
)

// Header is the first row of every snapshot sheet.
var Header = func() []string {
	h := []string{"Identity", "Year"}
	h = append(h, core.MonthLabels[:]...)
	return append(h, "Total", "Max", "UpdatedAt")
}()

// SnapshotRow is one identity's contribution totals for one year. Months not
// yet reached are zero.
type SnapshotRow struct {
	Identity  string
	Year      int
	Months    [12]int
	Total     int
	Max       int
	UpdatedAt time.Time
}

// Values renders the row in Header order.
func (r SnapshotRow) Values() []any {
	out := make([]any, 0, len(Header))
	out = append(out, r.Identity, r.Year)
	for _, m := range r.Months {
		out = append(out, m)
	}
	return append(out, r.Total, r.Max, r.UpdatedAt.UTC().Format(time.RFC3339))
}

// SnapshotExporter stores snapshot rows, replacing any earlier row for the
// same identity and year.
type SnapshotExporter interface {
	UpsertSnapshot(ctx context.Context, row SnapshotRow) error
}
