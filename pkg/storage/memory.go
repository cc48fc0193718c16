package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// MemoryStore implements Store in process.
// It is safe for concurrent use by multiple goroutines.
//
// Nothing survives a restart; use it for tests and STORAGE=memory dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	rows    []storedPoint
	records map[string]forecast.Record
	daily   []forecast.DailyLoad
	now     func() time.Time
}

type storedPoint struct {
	id        int64
	requestID string
	point     forecast.Point
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]forecast.Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, requestID string, points []forecast.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		s.nextID++
		s.rows = append(s.rows, storedPoint{id: s.nextID, requestID: requestID, point: p})
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, page forecast.Page) ([]forecast.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := make([]storedPoint, len(s.rows))
	copy(rows, s.rows)
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].point.Timestamp.Equal(rows[j].point.Timestamp) {
			return rows[i].point.Timestamp.Before(rows[j].point.Timestamp)
		}
		return rows[i].id < rows[j].id
	})

	start := min(page.Offset, len(rows))
	end := len(rows)
	if page.Limit > 0 {
		end = min(start+page.Limit, len(rows))
	}

	points := make([]forecast.Point, 0, end-start)
	for _, r := range rows[start:end] {
		points = append(points, r.point)
	}
	return points, nil
}

// CountByRequest returns how many points were appended for requestID.
func (s *MemoryStore) CountByRequest(requestID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.rows {
		if r.requestID == requestID {
			n++
		}
	}
	return n
}

// Len returns the total number of stored points.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) CreateRequest(ctx context.Context, rec forecast.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("request id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("request %s already exists", rec.ID)
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status forecast.Status, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, forecast.ErrNotFound)
	}
	rec.Status = status
	rec.Error = errMsg
	rec.UpdatedAt = s.now().UTC()
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id string) (forecast.Record, error) {
	if err := ctx.Err(); err != nil {
		return forecast.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return forecast.Record{}, fmt.Errorf("request %s: %w", id, forecast.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) ReplaceDailyLoad(ctx context.Context, rows []forecast.DailyLoad) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	daily := make([]forecast.DailyLoad, len(rows))
	copy(daily, rows)
	sort.Slice(daily, func(i, j int) bool { return daily[i].Day.Before(daily[j].Day) })

	for i := 1; i < len(daily); i++ {
		if daily[i].Day.Equal(daily[i-1].Day) {
			return fmt.Errorf("duplicate day %s", daily[i].Day.Format(forecast.DateLayout))
		}
	}

	s.mu.Lock()
	s.daily = daily
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListDailyLoad(ctx context.Context) ([]forecast.DailyLoad, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]forecast.DailyLoad, len(s.daily))
	copy(out, s.daily)
	return out, nil
}
