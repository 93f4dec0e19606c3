package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// MemoryStore keeps runs in process memory. It backs the CLI and servers
// started without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]ForecastRun
	order  []string
	points map[string][]domain.ForecastPoint
	fails  map[string][]domain.ItemFailure
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]ForecastRun),
		points: make(map[string][]domain.ForecastPoint),
		fails:  make(map[string][]domain.ItemFailure),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) SaveResults(ctx context.Context, runID string, points []domain.ForecastPoint, failures []domain.ItemFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return ErrRunNotFound
	}
	s.points[runID] = append([]domain.ForecastPoint(nil), points...)
	s.fails[runID] = append([]domain.ItemFailure(nil), failures...)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

// ListRuns returns the most recent runs first
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]ForecastRun, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out, nil
}

// GetPoints returns the stored predictions ordered by item and month
func (s *MemoryStore) GetPoints(ctx context.Context, runID string) ([]domain.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	points := append([]domain.ForecastPoint(nil), s.points[runID]...)
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].ItemID != points[j].ItemID {
			return points[i].ItemID < points[j].ItemID
		}
		return points[i].Period.Before(points[j].Period)
	})
	return points, nil
}

var _ RunStore = (*MemoryStore)(nil)
