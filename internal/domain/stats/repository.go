package stats

import "context"

// HistoryRepository keeps the per-device comparison state between poll
// cycles: cached starter sets, the previous aggregate, and the previous
// per-player scored points (own and opponent players alike).
type HistoryRepository interface {
	Starters(ctx context.Context, deviceID string) (StarterSet, bool, error)
	SaveStarters(ctx context.Context, deviceID string, starters StarterSet) error

	PreviousAggregate(ctx context.Context, deviceID string) (Aggregate, bool, error)
	SavePreviousAggregate(ctx context.Context, deviceID string, agg Aggregate) error

	PreviousPlayerScores(ctx context.Context, deviceID string) (map[string]float64, error)
	SavePreviousPlayerScores(ctx context.Context, deviceID string, scores map[string]float64) error

	// Clear drops every per-device table entry; called when a session ends.
	Clear(ctx context.Context, deviceID string) error
}
