package memory

import (
	"context"
	"sync"

	"github.com/fieldpulse/liveactivity/internal/domain/stats"
)

// HistoryRepository keeps per-device comparison state behind one lock so all
// writes go through single-writer discipline.
type HistoryRepository struct {
	mu           sync.RWMutex
	starters     map[string]stats.StarterSet
	aggregates   map[string]stats.Aggregate
	playerScores map[string]map[string]float64
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		starters:     make(map[string]stats.StarterSet),
		aggregates:   make(map[string]stats.Aggregate),
		playerScores: make(map[string]map[string]float64),
	}
}

func (r *HistoryRepository) Starters(_ context.Context, deviceID string) (stats.StarterSet, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.starters[deviceID]
	if !ok {
		return stats.StarterSet{}, false, nil
	}

	return cloneStarterSet(set), true, nil
}

func (r *HistoryRepository) SaveStarters(_ context.Context, deviceID string, set stats.StarterSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.starters[deviceID] = cloneStarterSet(set)
	return nil
}

func (r *HistoryRepository) PreviousAggregate(_ context.Context, deviceID string) (stats.Aggregate, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg, ok := r.aggregates[deviceID]
	return agg, ok, nil
}

func (r *HistoryRepository) SavePreviousAggregate(_ context.Context, deviceID string, agg stats.Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.aggregates[deviceID] = agg
	return nil
}

func (r *HistoryRepository) PreviousPlayerScores(_ context.Context, deviceID string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneScores(r.playerScores[deviceID]), nil
}

func (r *HistoryRepository) SavePreviousPlayerScores(_ context.Context, deviceID string, scores map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.playerScores[deviceID] = cloneScores(scores)
	return nil
}

func (r *HistoryRepository) Clear(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.starters, deviceID)
	delete(r.aggregates, deviceID)
	delete(r.playerScores, deviceID)
	return nil
}

func cloneStarterSet(set stats.StarterSet) stats.StarterSet {
	return stats.StarterSet{
		Own:      append([]string(nil), set.Own...),
		Opponent: append([]string(nil), set.Opponent...),
	}
}

func cloneScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for id, v := range scores {
		out[id] = v
	}
	return out
}
