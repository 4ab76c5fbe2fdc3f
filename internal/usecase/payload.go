package usecase

import (
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
)

const (
	activityAttributesType = "FantasyLiveActivityAttributes"

	// endDismissalDelay keeps the final scoreboard on the lockscreen for a
	// while before the system removes it.
	endDismissalDelay = 30 * time.Minute
)

// ActivityContent is the live-activity content state rendered on the
// lockscreen. Field names follow the client's ActivityKit contract.
type ActivityContent struct {
	TotalPoints        float64 `json:"totalPoints"`
	ActivePlayersCount int     `json:"activePlayersCount"`
	TeamName           string  `json:"teamName"`
	OpponentPoints     float64 `json:"opponentPoints"`
	OpponentTeamName   string  `json:"opponentTeamName"`
	LeagueName         string  `json:"leagueName"`
	GameStatus         string  `json:"gameStatus"`
	LastUpdate         string  `json:"lastUpdate"`
	Message            string  `json:"message,omitempty"`
}

// BuildStartPayload builds the push-to-start payload that creates the live
// activity remotely, banner included.
func BuildStartPayload(content ActivityContent, now time.Time) ([]byte, error) {
	content.LastUpdate = now.UTC().Format(time.RFC3339)

	payload := map[string]any{
		"aps": map[string]any{
			"timestamp":       now.Unix(),
			"event":           "start",
			"content-state":   content,
			"attributes-type": activityAttributesType,
			"attributes": map[string]any{
				"teamName":   content.TeamName,
				"leagueName": content.LeagueName,
			},
			"alert": map[string]any{
				"title": "Fantasy Football Live",
				"body":  "Score tracking started",
			},
		},
	}

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, crerr.Wrap(err, "encode start payload")
	}
	return raw, nil
}

// BuildUpdatePayload builds the content-state refresh. A non-empty alert
// message adds a banner on top of the silent update.
func BuildUpdatePayload(content ActivityContent, alertMessage string, now time.Time) ([]byte, error) {
	content.LastUpdate = now.UTC().Format(time.RFC3339)
	if alertMessage != "" {
		content.Message = alertMessage
	}

	aps := map[string]any{
		"timestamp":     now.Unix(),
		"event":         "update",
		"content-state": content,
	}
	if alertMessage != "" {
		aps["alert"] = map[string]any{
			"title": "Score Update",
			"body":  alertMessage,
		}
	}

	raw, err := sonic.Marshal(map[string]any{"aps": aps})
	if err != nil {
		return nil, crerr.Wrap(err, "encode update payload")
	}
	return raw, nil
}

// BuildEndPayload builds the terminal push. The dismissal date keeps the
// final state visible for thirty minutes.
func BuildEndPayload(content ActivityContent, now time.Time) ([]byte, error) {
	content.LastUpdate = now.UTC().Format(time.RFC3339)
	content.GameStatus = "Final"

	payload := map[string]any{
		"aps": map[string]any{
			"timestamp":      now.Unix(),
			"event":          "end",
			"dismissal-date": now.Add(endDismissalDelay).Unix(),
			"content-state":  content,
		},
	}

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, crerr.Wrap(err, "encode end payload")
	}
	return raw, nil
}
