package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio/internal/core"
)

var ErrInvalidSnapshot = errors.New("invalid contribution snapshot")

// SnapshotMessage carries one contribution summary to the export worker.
// Months holds the monthly counts from January through the month the summary
// was generated in.
type SnapshotMessage struct {
	Identity    string    `json:"identity"`
	Year        int       `json:"year"`
	Months      []int     `json:"months"`
	Total       int       `json:"total"`
	Max         int       `json:"max"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewSnapshotMessage builds a snapshot from aggregated buckets.
func NewSnapshotMessage(identity string, year int, buckets []core.MonthBucket, summary core.Summary, generatedAt time.Time) SnapshotMessage {
	months := make([]int, len(buckets))
	for i, b := range buckets {
		months[i] = b.Count
	}
	return SnapshotMessage{
		Identity:    identity,
		Year:        year,
		Months:      months,
		Total:       summary.Total,
		Max:         summary.Max,
		GeneratedAt: generatedAt.UTC(),
	}
}

// Validate rejects snapshots the worker cannot export.
func (m SnapshotMessage) Validate() error {
	switch {
	case m.Identity == "":
		return fmt.Errorf("%w: empty identity", ErrInvalidSnapshot)
	case m.Year < 1:
		return fmt.Errorf("%w: year %d", ErrInvalidSnapshot, m.Year)
	case len(m.Months) == 0 || len(m.Months) > 12:
		return fmt.Errorf("%w: %d months", ErrInvalidSnapshot, len(m.Months))
	}
	for i, c := range m.Months {
		if c < 0 {
			return fmt.Errorf("%w: negative count for %s", ErrInvalidSnapshot, core.MonthLabels[i])
		}
	}
	return nil
}

func (m SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotMessageFromJSON decodes and validates a snapshot body.
func SnapshotMessageFromJSON(data []byte) (SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SnapshotMessage{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := msg.Validate(); err != nil {
		return SnapshotMessage{}, err
	}
	return msg, nil
}
