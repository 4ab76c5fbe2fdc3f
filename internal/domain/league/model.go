package league

// Roster is one team's roster inside a league.
type Roster struct {
	RosterID int
	OwnerID  string
	Starters []string
	Players  []string
}

// Member is a league member as returned by the league host.
type Member struct {
	UserID      string
	DisplayName string
	TeamName    string
	Avatar      string
}

type Info struct {
	LeagueID string
	Name     string
	Season   string
}

// Matchup pairs rosters for one week; two rosters share a MatchupID.
type Matchup struct {
	RosterID  int
	MatchupID int
	Points    float64
}

// SeasonState is the host's notion of the current season and week.
type SeasonState struct {
	Season string
	Week   int
}

// PlayerInfo is the reference-catalog entry for one player.
type PlayerInfo struct {
	FullName  string
	FirstName string
	LastName  string
	Team      string
	Position  string
	Number    int
}

// DisplayNameOrDefault avoids empty team labels in push payloads.
func (m Member) DisplayNameOrDefault(fallback string) string {
	if m.TeamName != "" {
		return m.TeamName
	}
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return fallback
}
