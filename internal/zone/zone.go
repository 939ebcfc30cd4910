package zone

import (
	"strings"

	"github.com/derekprior/fixture/internal/config"
)

// RoundRobin is the system code that puts every team in one zone.
const RoundRobin = "rr"

// Zone is a labeled group of teams that plays its own round robin.
type Zone struct {
	Name  string
	Teams []string
}

// Assign returns a copy of teams with zones set according to the system code.
//
// When every team already carries a zone the copy is returned unchanged.
// The codes 8x3 and 4x6 split exactly 24 teams into contiguous groups
// A, B, C... of 3 and 6. Any other code, or a count mismatch, puts every
// team in zone A.
func Assign(teams []config.Team, system string) []config.Team {
	out := make([]config.Team, len(teams))
	copy(out, teams)
	if allZoned(out) {
		return out
	}

	size, ok := groupSize(system, len(out))
	if !ok {
		for i := range out {
			out[i].Zone = "A"
		}
		return out
	}
	for i := range out {
		out[i].Zone = Label(i / size)
	}
	return out
}

// Label returns the zone name for a 0-based group index: A..Z, then AA, AB...
func Label(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

// Group returns zones in order of first appearance, each with its team names
// in input order.
func Group(teams []config.Team) []Zone {
	index := make(map[string]int)
	var zones []Zone
	for _, t := range teams {
		i, ok := index[t.Zone]
		if !ok {
			i = len(zones)
			index[t.Zone] = i
			zones = append(zones, Zone{Name: t.Zone})
		}
		zones[i].Teams = append(zones[i].Teams, t.Name)
	}
	return zones
}

func allZoned(teams []config.Team) bool {
	for _, t := range teams {
		if t.Zone == "" {
			return false
		}
	}
	return true
}

// groupSizes maps each split system to its zone size. Each split applies
// only to exactly 24 teams.
var groupSizes = map[string]int{
	"8x3": 3,
	"4x6": 6,
}

const splitTeams = 24

// groupSize reports the zone size for system when it applies to n teams.
func groupSize(system string, n int) (int, bool) {
	size, ok := groupSizes[strings.ToLower(strings.TrimSpace(system))]
	if !ok || n != splitTeams {
		return 0, false
	}
	return size, true
}
