package schedule

import (
	"strings"
	"time"
)

const (
	StatusScheduled = "SCHEDULED"
	StatusLive      = "LIVE"
	StatusFinished  = "FINISHED"
)

// Game is one entry from the daily scoreboard. Teams holds the competitor
// abbreviations (e.g. "KC", "BUF").
type Game struct {
	Name      string
	Teams     []string
	StartTime time.Time
	Status    string
}

func NormalizeStatus(value string) string {
	status := strings.ToUpper(strings.TrimSpace(value))
	switch status {
	case "", "PRE", StatusScheduled:
		return StatusScheduled
	case "IN", StatusLive, "IN_PROGRESS", "HALFTIME":
		return StatusLive
	case "POST", StatusFinished, "FINAL", "FULL_TIME":
		return StatusFinished
	default:
		return status
	}
}

func IsLiveStatus(status string) bool {
	return NormalizeStatus(status) == StatusLive
}

func IsFinishedStatus(status string) bool {
	return NormalizeStatus(status) == StatusFinished
}

// StartsWithin reports whether the game begins inside [now, now+lead].
func (g Game) StartsWithin(now time.Time, lead time.Duration) bool {
	if g.StartTime.IsZero() {
		return false
	}
	diff := g.StartTime.Sub(now)
	return diff >= 0 && diff <= lead
}

// HasTeam reports whether abbr is one of the game's competitors.
func (g Game) HasTeam(abbr string) bool {
	abbr = strings.ToUpper(strings.TrimSpace(abbr))
	if abbr == "" {
		return false
	}
	for _, team := range g.Teams {
		if strings.ToUpper(strings.TrimSpace(team)) == abbr {
			return true
		}
	}
	return false
}
