package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

const (
	// aggregateEpsilon suppresses pushes for float noise below display
	// precision.
	aggregateEpsilon = 0.01

	// highlightMinDelta is the smallest per-player jump worth naming.
	highlightMinDelta = 0.1

	// highlightAlertDelta marks a jump big enough for a banner alert.
	highlightAlertDelta = 3.0
)

// ChangeInput is one device's freshly computed state for a poll cycle.
type ChangeInput struct {
	DeviceID    string
	Current     stats.Aggregate
	Scores      map[string]float64
	OpponentIDs map[string]struct{}
	Catalog     map[string]league.PlayerInfo
}

// ChangeDecision says whether the cycle warrants a push, whether it carries
// a banner alert, and the highlight message when one player drove the jump.
type ChangeDecision struct {
	ShouldPush bool
	IsAlert    bool
	Message    string
}

// ChangeDetector compares a cycle's aggregate and per-player scores against
// the previous cycle and decides what to send. The per-player score table is
// updated on every call regardless of the decision, so a skipped push never
// replays an old highlight later.
type ChangeDetector struct {
	history stats.HistoryRepository
	logger  *logging.Logger
}

func NewChangeDetector(history stats.HistoryRepository, logger *logging.Logger) *ChangeDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChangeDetector{history: history, logger: logger}
}

func (d *ChangeDetector) Evaluate(ctx context.Context, in ChangeInput) (ChangeDecision, error) {
	prevScores, err := d.history.PreviousPlayerScores(ctx, in.DeviceID)
	if err != nil {
		return ChangeDecision{}, err
	}
	prevAgg, hadPrev, err := d.history.PreviousAggregate(ctx, in.DeviceID)
	if err != nil {
		return ChangeDecision{}, err
	}

	decision := ChangeDecision{}
	if hadPrev {
		decision.Message, decision.IsAlert = d.highlight(in, prevScores)
	}

	aggregateChanged := math.Abs(in.Current.ScoredTotal-prevAgg.ScoredTotal) >= aggregateEpsilon ||
		math.Abs(in.Current.ProjectedTotal-prevAgg.ProjectedTotal) >= aggregateEpsilon

	// a qualifying per-player jump pushes on its own: the aggregate only
	// covers the device's own lineup, so an opponent move never shifts it
	decision.ShouldPush = !hadPrev || aggregateChanged || decision.Message != ""

	if err := d.history.SavePreviousPlayerScores(ctx, in.DeviceID, in.Scores); err != nil {
		return ChangeDecision{}, err
	}
	if decision.ShouldPush {
		if err := d.history.SavePreviousAggregate(ctx, in.DeviceID, in.Current); err != nil {
			return ChangeDecision{}, err
		}
	}

	return decision, nil
}

// highlight picks the single largest per-player score increase at or above
// the minimum delta and formats the banner line for it.
func (d *ChangeDetector) highlight(in ChangeInput, prevScores map[string]float64) (string, bool) {
	bestID := ""
	bestDelta := 0.0
	for id, current := range in.Scores {
		delta := current - prevScores[id]
		if delta < highlightMinDelta {
			continue
		}
		if delta > bestDelta || (delta == bestDelta && id < bestID) {
			bestID = id
			bestDelta = delta
		}
	}
	if bestID == "" {
		return "", false
	}

	name := bestID
	if info, ok := in.Catalog[bestID]; ok && info.FullName != "" {
		name = info.FullName
	}

	message := fmt.Sprintf("%s +%.1f pts", name, bestDelta)
	if _, isOpponent := in.OpponentIDs[bestID]; isOpponent {
		message += " (opponent)"
	}

	return message, bestDelta >= highlightAlertDelta
}
