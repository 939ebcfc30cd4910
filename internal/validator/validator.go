package validator

import (
	"fmt"
	"sort"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/excel"
	"github.com/derekprior/fixture/internal/schedule"
	"github.com/derekprior/fixture/internal/strategy"
	"github.com/xuri/excelize/v2"
)

// Violation represents a constraint violation found during validation.
type Violation struct {
	Row     int
	Type    string // "error" or "warning"
	Message string
}

// Validate reads a fixture workbook and checks it against the config rules
// and the matches the team list requires.
func Validate(cfg *config.Config, teams []config.Team, path string) ([]Violation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := excel.ReadFixture(f)
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}
	return Check(cfg, teams, rows), nil
}

// Check validates already parsed fixture rows.
func Check(cfg *config.Config, teams []config.Team, rows []excel.FixtureRow) []Violation {
	var violations []Violation

	violations = append(violations, checkSlotConflicts(rows)...)
	violations = append(violations, checkGrid(cfg, rows)...)
	violations = append(violations, checkRest(cfg, rows)...)
	violations = append(violations, checkDailyCap(cfg, rows)...)
	violations = append(violations, checkCompleteness(cfg, teams, rows)...)
	violations = append(violations, checkMatchIDs(rows)...)

	return violations
}

type slotKey struct {
	day   int
	time  string
	field string
}

func keyOf(r excel.FixtureRow) slotKey {
	return slotKey{r.Assignment.Slot.Day, r.Assignment.Slot.Time, r.Assignment.Slot.Field}
}

func checkSlotConflicts(rows []excel.FixtureRow) []Violation {
	first := make(map[slotKey]int)
	var violations []Violation
	for _, r := range rows {
		k := keyOf(r)
		if prev, ok := first[k]; ok {
			violations = append(violations, Violation{
				Row:     r.Row,
				Type:    "error",
				Message: fmt.Sprintf("day %d %s %s holds two matches (rows %d and %d)", k.day, k.time, k.field, prev, r.Row),
			})
			continue
		}
		first[k] = r.Row
	}
	return violations
}

func checkGrid(cfg *config.Config, rows []excel.FixtureRow) []Violation {
	valid := make(map[slotKey]bool)
	for _, s := range schedule.GenerateSlots(cfg) {
		valid[slotKey{s.Day, s.Time, s.Field}] = true
	}

	var violations []Violation
	for _, r := range rows {
		if !valid[keyOf(r)] {
			k := keyOf(r)
			violations = append(violations, Violation{
				Row:     r.Row,
				Type:    "error",
				Message: fmt.Sprintf("day %d %s %s is not an available slot", k.day, k.time, k.field),
			})
		}
	}
	return violations
}

type teamMatch struct {
	row      int
	absolute int
}

func checkRest(cfg *config.Config, rows []excel.FixtureRow) []Violation {
	rest := cfg.RestMinutes()
	byTeam := make(map[string][]teamMatch)
	for _, r := range rows {
		c, err := config.ParseClock(r.Assignment.Slot.Time)
		if err != nil {
			continue
		}
		at := (r.Assignment.Slot.Day-1)*24*60 + c.Minutes()
		for _, team := range []string{r.Assignment.Game.Home, r.Assignment.Game.Away} {
			byTeam[team] = append(byTeam[team], teamMatch{r.Row, at})
		}
	}

	teams := make([]string, 0, len(byTeam))
	for team := range byTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	var violations []Violation
	for _, team := range teams {
		matches := byTeam[team]
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].absolute < matches[j].absolute })
		for i := 1; i < len(matches); i++ {
			gap := matches[i].absolute - matches[i-1].absolute
			if gap < rest {
				violations = append(violations, Violation{
					Row:  matches[i].row,
					Type: "error",
					Message: fmt.Sprintf("%s rests only %d minutes between rows %d and %d (min %d)",
						team, gap, matches[i-1].row, matches[i].row, rest),
				})
			}
		}
	}
	return violations
}

func checkDailyCap(cfg *config.Config, rows []excel.FixtureRow) []Violation {
	limit := cfg.DailyCap()
	if limit == 0 {
		return nil
	}
	counts := make(map[int]int)
	for _, r := range rows {
		counts[r.Assignment.Slot.Day]++
	}

	days := make([]int, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Ints(days)

	var violations []Violation
	for _, d := range days {
		if counts[d] > limit {
			violations = append(violations, Violation{
				Type:    "error",
				Message: fmt.Sprintf("day %d has %d matches (max %d)", d, counts[d], limit),
			})
		}
	}
	return violations
}

func checkCompleteness(cfg *config.Config, teams []config.Team, rows []excel.FixtureRow) []Violation {
	type pairing struct{ home, away string }

	known := make(map[string]bool)
	for _, t := range teams {
		known[t.Name] = true
	}

	expected := make(map[pairing]int)
	var order []pairing
	for _, g := range strategy.GenerateMatchups(teams, cfg.System, cfg.HomeAndAway) {
		p := pairing{g.Home, g.Away}
		if expected[p] == 0 {
			order = append(order, p)
		}
		expected[p]++
	}

	var violations []Violation
	actual := make(map[pairing]int)
	for _, r := range rows {
		g := r.Assignment.Game
		for _, team := range []string{g.Home, g.Away} {
			if !known[team] {
				violations = append(violations, Violation{
					Row:     r.Row,
					Type:    "error",
					Message: fmt.Sprintf("%s is not in the team list", team),
				})
			}
		}
		p := pairing{g.Home, g.Away}
		actual[p]++
		if expected[p] == 0 && known[g.Home] && known[g.Away] {
			violations = append(violations, Violation{
				Row:     r.Row,
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s is not a required match", g.Home, g.Away),
			})
		}
	}

	for _, p := range order {
		switch n := actual[p]; {
		case n < expected[p]:
			violations = append(violations, Violation{
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s is not scheduled", p.home, p.away),
			})
		case n > expected[p]:
			violations = append(violations, Violation{
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s is scheduled %d times (want %d)", p.home, p.away, n, expected[p]),
			})
		}
	}
	return violations
}

func checkMatchIDs(rows []excel.FixtureRow) []Violation {
	for i, r := range rows {
		if r.Assignment.MatchID != i+1 {
			return []Violation{{
				Row:     r.Row,
				Type:    "warning",
				Message: fmt.Sprintf("match IDs are not numbered 1..%d in row order (row %d has ID %d)", len(rows), r.Row, r.Assignment.MatchID),
			}}
		}
	}
	return nil
}
