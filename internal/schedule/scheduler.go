package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/strategy"
)

// ErrInfeasible is returned (wrapped in an *InfeasibleError) when some game
// cannot be placed in any slot.
var ErrInfeasible = errors.New("could not assign a slot to every match")

// neverPlayed stands in for minus infinity as a team's last match time.
const neverPlayed = -1_000_000

// Assignment pairs a game with a slot. MatchID numbers the final schedule
// from 1 in (day, time, field) order.
type Assignment struct {
	Game    strategy.Game
	Slot    Slot
	MatchID int
}

// TeamMetrics holds per-team schedule statistics.
type TeamMetrics struct {
	Zone    string
	Matches int
	MinGap  int // shortest gap in minutes between consecutive matches, -1 if fewer than two
}

// Result is the output of a successful scheduling run.
type Result struct {
	Assignments []Assignment
	TeamMetrics map[string]*TeamMetrics
}

// Rules are the hard constraints applied while binding games to slots.
type Rules struct {
	Rest             int // minimum minutes between two matches of one team
	MaxMatchesPerDay int // 0 means no cap
}

// RulesFromConfig extracts the scheduling rules from a config.
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{Rest: cfg.RestMinutes(), MaxMatchesPerDay: cfg.DailyCap()}
}

// rejectionReason categorizes why a slot was rejected for a game.
type rejectionReason int

const (
	rejectSlotUsed rejectionReason = iota
	rejectRest
	rejectDailyCap
)

func (r rejectionReason) String() string {
	switch r {
	case rejectSlotUsed:
		return "slot already used"
	case rejectRest:
		return "rest time"
	case rejectDailyCap:
		return "daily match cap"
	}
	return "unknown"
}

// InfeasibleError describes the game the scheduler got stuck on.
type InfeasibleError struct {
	Game       strategy.Game
	Scheduled  int
	Total      int
	Slots      int
	Rejections map[string]int // reason -> slots rejected for Game
}

func (e *InfeasibleError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s vs %s (zone %s, round %d) fits no slot",
		ErrInfeasible, e.Game.Home, e.Game.Away, e.Game.Zone, e.Game.Round)
	fmt.Fprintf(&b, "\nscheduled %d of %d matches into %d available slots", e.Scheduled, e.Total, e.Slots)
	var reasons []string
	for _, r := range []rejectionReason{rejectSlotUsed, rejectRest, rejectDailyCap} {
		if n := e.Rejections[r.String()]; n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %d", r, n))
		}
	}
	if len(reasons) > 0 {
		fmt.Fprintf(&b, "\nslots rejected for the last match: %s", strings.Join(reasons, ", "))
	}
	b.WriteString("\nadd days or fields, shorten the match duration, or reduce the rest time")
	return b.String()
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

type scheduler struct {
	rules  Rules
	slots  []Slot
	games  []strategy.Game
	starts map[Slot]int // slot -> absolute start minute

	assignments []Assignment
	usedSlots   map[int]bool   // slot index -> taken
	lastPlayed  map[string]int // team -> absolute minute of its latest match
	dayCount    map[int]int    // day -> matches bound
}

func newScheduler(rules Rules, slots []Slot, games []strategy.Game) (*scheduler, error) {
	starts := make(map[Slot]int, len(slots))
	for _, slot := range slots {
		at, err := slot.start()
		if err != nil {
			return nil, err
		}
		starts[slot] = at
	}
	return &scheduler{
		rules:      rules,
		slots:      slots,
		games:      games,
		starts:     starts,
		usedSlots:  make(map[int]bool),
		lastPlayed: make(map[string]int),
		dayCount:   make(map[int]int),
	}, nil
}

// Schedule binds every game, in the given order, to the earliest slot that is
// free, leaves both teams their rest time and keeps the day under the cap.
// Slots must be ordered by Index. There is no backtracking: if any game finds
// no slot the whole run fails with an *InfeasibleError and no partial result.
// A slot with a malformed Time is rejected before any game is placed.
func Schedule(rules Rules, slots []Slot, games []strategy.Game) (*Result, error) {
	s, err := newScheduler(rules, slots, games)
	if err != nil {
		return nil, err
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	s.finalize()
	return &Result{
		Assignments: s.assignments,
		TeamMetrics: s.buildMetrics(),
	}, nil
}

func (s *scheduler) run() error {
	for _, game := range s.games {
		rejections := make(map[string]int)
		if !s.assignGame(game, rejections) {
			return &InfeasibleError{
				Game:       game,
				Scheduled:  len(s.assignments),
				Total:      len(s.games),
				Slots:      len(s.slots),
				Rejections: rejections,
			}
		}
	}
	return nil
}

func (s *scheduler) assignGame(game strategy.Game, rejections map[string]int) bool {
	for _, slot := range s.slots {
		if reason, ok := s.hardConstraintCheck(game, slot); !ok {
			rejections[reason.String()]++
			continue
		}
		s.assign(game, slot)
		return true
	}
	return false
}

func (s *scheduler) hardConstraintCheck(game strategy.Game, slot Slot) (rejectionReason, bool) {
	if s.usedSlots[slot.Index] {
		return rejectSlotUsed, false
	}

	at := s.starts[slot]
	for _, team := range []string{game.Home, game.Away} {
		last, ok := s.lastPlayed[team]
		if !ok {
			last = neverPlayed
		}
		if at-last < s.rules.Rest {
			return rejectRest, false
		}
	}

	if s.rules.MaxMatchesPerDay > 0 && s.dayCount[slot.Day] >= s.rules.MaxMatchesPerDay {
		return rejectDailyCap, false
	}
	return 0, true
}

func (s *scheduler) assign(game strategy.Game, slot Slot) {
	s.assignments = append(s.assignments, Assignment{Game: game, Slot: slot, MatchID: slot.Index})
	s.usedSlots[slot.Index] = true
	s.lastPlayed[game.Home] = s.starts[slot]
	s.lastPlayed[game.Away] = s.starts[slot]
	s.dayCount[slot.Day]++
}

// finalize sorts assignments by day, time and field name and numbers them from 1.
func (s *scheduler) finalize() {
	sort.SliceStable(s.assignments, func(i, j int) bool {
		a, b := s.assignments[i].Slot, s.assignments[j].Slot
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Time != b.Time {
			return s.starts[a] < s.starts[b]
		}
		return a.Field < b.Field
	})
	for i := range s.assignments {
		s.assignments[i].MatchID = i + 1
	}
}

func (s *scheduler) buildMetrics() map[string]*TeamMetrics {
	metrics := make(map[string]*TeamMetrics)
	last := make(map[string]int)
	for _, a := range s.assignments {
		for _, team := range []string{a.Game.Home, a.Game.Away} {
			m, ok := metrics[team]
			if !ok {
				m = &TeamMetrics{Zone: a.Game.Zone, MinGap: -1}
				metrics[team] = m
			}
			at := s.starts[a.Slot]
			if m.Matches > 0 {
				gap := at - last[team]
				if m.MinGap < 0 || gap < m.MinGap {
					m.MinGap = gap
				}
			}
			last[team] = at
			m.Matches++
		}
	}
	return metrics
}
