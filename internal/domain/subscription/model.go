package subscription

import "time"

type SessionState string

const (
	StateInactive SessionState = "INACTIVE"
	StateActive   SessionState = "ACTIVE"
)

// Device is the authoritative record for one registered device. DeviceID is
// the primary key for every per-device table in the service.
type Device struct {
	DeviceID           string
	UserID             string
	LeagueID           string
	NotificationToken  string
	SessionStartToken  string
	SessionUpdateToken string
	State              SessionState
	SessionStartedAt   time.Time
	LastUpdatedAt      time.Time
}

func (d Device) SessionActive() bool {
	return d.State == StateActive
}

// PushToken returns the token preferred for update and end sends: the
// session update token when the client registered one, otherwise the plain
// notification token.
func (d Device) PushToken() string {
	if d.SessionUpdateToken != "" {
		return d.SessionUpdateToken
	}
	return d.NotificationToken
}
