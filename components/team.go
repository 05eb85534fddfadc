package components

import "fmt"

// Team identifies the side an entity or tile belongs to.
type Team uint8

const (
	TeamDerelict Team = iota // Unowned rubble
	TeamBlue                 // Default player team
	TeamRed                  // Default wave team
	TeamGreen
	TeamPurple

	NumTeams
)

var teamNames = [NumTeams]string{"derelict", "blue", "red", "green", "purple"}

// String returns the team name.
func (t Team) String() string {
	if t < NumTeams {
		return teamNames[t]
	}
	return fmt.Sprintf("team(%d)", uint8(t))
}

// ParseTeam looks a team up by name.
func ParseTeam(name string) (Team, error) {
	for i, n := range teamNames {
		if n == name {
			return Team(i), nil
		}
	}
	return 0, fmt.Errorf("unknown team %q", name)
}

// MarshalText implements encoding.TextMarshaler so teams read naturally in YAML and JSON.
func (t Team) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Team) UnmarshalText(text []byte) error {
	parsed, err := ParseTeam(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
