package strategy

import (
	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/zone"
)

// Pairing is one home/away matchup within a round.
type Pairing struct {
	Home string
	Away string
}

// Game is a pending match: a pairing tagged with its zone and round, not yet
// bound to a slot. Round numbers restart at 1 in every zone.
type Game struct {
	Zone  string `json:"zone"`
	Home  string `json:"home"`
	Away  string `json:"away"`
	Round int    `json:"round"`
}

// bye marks the synthetic opponent added when a zone has an odd team count.
const bye = -1

// RoundRobin generates rounds with the circle method. Position 0 stays fixed
// while the others rotate one step per round; position i meets position n-1-i.
// Pairings against the bye are dropped. With homeAndAway the rounds are
// repeated with home and away swapped.
func RoundRobin(names []string, homeAndAway bool) [][]Pairing {
	if len(names) < 2 {
		return nil
	}

	pos := make([]int, len(names))
	for i := range pos {
		pos[i] = i
	}
	if len(pos)%2 == 1 {
		pos = append(pos, bye)
	}
	n := len(pos)

	rounds := make([][]Pairing, 0, n-1)
	for range n - 1 {
		var round []Pairing
		for i := 0; i < n/2; i++ {
			home, away := pos[i], pos[n-1-i]
			if home == bye || away == bye {
				continue
			}
			round = append(round, Pairing{Home: names[home], Away: names[away]})
		}
		rounds = append(rounds, round)

		last := pos[n-1]
		copy(pos[2:], pos[1:n-1])
		pos[1] = last
	}

	if homeAndAway {
		for _, round := range rounds[:n-1] {
			mirrored := make([]Pairing, len(round))
			for i, p := range round {
				mirrored[i] = Pairing{Home: p.Away, Away: p.Home}
			}
			rounds = append(rounds, mirrored)
		}
	}
	return rounds
}

// GenerateMatchups assigns zones, runs a round robin inside every zone and
// returns all pending games in zone order, then round order, then pairing
// order. This order decides which games see the earliest slots.
func GenerateMatchups(teams []config.Team, system string, homeAndAway bool) []Game {
	var games []Game
	for _, z := range zone.Group(zone.Assign(teams, system)) {
		for r, round := range RoundRobin(z.Teams, homeAndAway) {
			for _, p := range round {
				games = append(games, Game{
					Zone:  z.Name,
					Home:  p.Home,
					Away:  p.Away,
					Round: r + 1,
				})
			}
		}
	}
	return games
}
