package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	ports "portfolio/internal/sheets"
)

// Store keeps snapshot rows in memory, one per identity and year.
type Store struct {
	mu   sync.Mutex
	rows map[string]ports.SnapshotRow
}

var _ ports.SnapshotExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[string]ports.SnapshotRow)}
}

func (s *Store) UpsertSnapshot(_ context.Context, row ports.SnapshotRow) error {
	if strings.TrimSpace(row.Identity) == "" {
		return errors.New("snapshot row has no identity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key(row.Identity, row.Year)] = row
	return nil
}

// Get returns the stored row for identity and year.
func (s *Store) Get(identity string, year int) (ports.SnapshotRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key(identity, year)]
	return row, ok
}

// Rows returns every row ordered by year, then identity.
func (s *Store) Rows() []ports.SnapshotRow {
	s.mu.Lock()
	out := make([]ports.SnapshotRow, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return strings.ToLower(out[i].Identity) < strings.ToLower(out[j].Identity)
	})
	return out
}

func key(identity string, year int) string {
	return strings.ToLower(strings.TrimSpace(identity)) + "@" + strconv.Itoa(year)
}
