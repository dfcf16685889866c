package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"portfolio/internal/amqp"
	"portfolio/internal/log"
	"portfolio/internal/sheets"
)

// ExportWorker writes contribution snapshots from the queue to a spreadsheet.
type ExportWorker struct {
	exporter sheets.SnapshotExporter
	logger   *log.Logger

	mu     sync.Mutex
	latest map[string]time.Time
}

func NewExportWorker(exporter sheets.SnapshotExporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentWorker})
	}
	return &ExportWorker{
		exporter: exporter,
		logger:   logger,
		latest:   make(map[string]time.Time),
	}
}

// HandleSnapshot exports msg unless a newer snapshot for the same identity
// and year was already exported by this worker.
func (w *ExportWorker) HandleSnapshot(ctx context.Context, msg amqp.SnapshotMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	k := strings.ToLower(msg.Identity) + "@" + strconv.Itoa(msg.Year)
	w.mu.Lock()
	last, seen := w.latest[k]
	w.mu.Unlock()
	if seen && msg.GeneratedAt.Before(last) {
		w.logger.InfoContext(ctx, "Skipping stale snapshot",
			log.FieldIdentity, msg.Identity,
			log.FieldYear, msg.Year,
			"generated_at", msg.GeneratedAt,
			"latest", last)
		return nil
	}

	if err := w.exporter.UpsertSnapshot(ctx, ToRow(msg)); err != nil {
		return fmt.Errorf("export snapshot for %q: %w", msg.Identity, err)
	}

	w.mu.Lock()
	if msg.GeneratedAt.After(w.latest[k]) {
		w.latest[k] = msg.GeneratedAt
	}
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Exported contribution snapshot",
		log.NewFields().WithSummary(msg.Identity, msg.Year, len(msg.Months), msg.Total, msg.Max).
			WithOperation(log.OpExport).ToSlice()...)
	return nil
}

// ToRow converts a snapshot message to a spreadsheet row.
func ToRow(msg amqp.SnapshotMessage) sheets.SnapshotRow {
	row := sheets.SnapshotRow{
		Identity:  msg.Identity,
		Year:      msg.Year,
		Total:     msg.Total,
		Max:       msg.Max,
		UpdatedAt: msg.GeneratedAt,
	}
	copy(row.Months[:], msg.Months)
	return row
}
