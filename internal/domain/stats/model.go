package stats

import (
	"math"
	"time"
)

// PlayerLine is one player's scored and projected fantasy points.
type PlayerLine struct {
	Scored    float64
	Projected float64
}

// Snapshot is the process-wide player-statistics table for one poll cycle.
// It is built once and replaced wholesale by an atomic pointer swap; readers
// never observe a partially built table.
type Snapshot struct {
	lines   map[string]PlayerLine
	builtAt time.Time
}

func NewSnapshot(lines map[string]PlayerLine, builtAt time.Time) *Snapshot {
	copied := make(map[string]PlayerLine, len(lines))
	for id, line := range lines {
		copied[id] = line
	}
	return &Snapshot{lines: copied, builtAt: builtAt}
}

// Line returns the player's line; missing players yield a zero line, since
// upstream data lag is expected.
func (s *Snapshot) Line(playerID string) (PlayerLine, bool) {
	if s == nil {
		return PlayerLine{}, false
	}
	line, ok := s.lines[playerID]
	return line, ok
}

func (s *Snapshot) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}

func (s *Snapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.lines)
}

// Aggregate is a device's summed totals, rounded to two decimals.
type Aggregate struct {
	ScoredTotal    float64
	ProjectedTotal float64
}

// StarterSet holds the starter player ids for a device's own lineup and its
// current opponent's lineup.
type StarterSet struct {
	Own      []string
	Opponent []string
}

// Combined returns own and opponent starters as one slice.
func (s StarterSet) Combined() []string {
	out := make([]string, 0, len(s.Own)+len(s.Opponent))
	out = append(out, s.Own...)
	out = append(out, s.Opponent...)
	return out
}

// Round2 rounds to two decimal places, the precision of fantasy points.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
