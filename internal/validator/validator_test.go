package validator

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/excel"
	"github.com/derekprior/fixture/internal/schedule"
	"github.com/derekprior/fixture/internal/strategy"
	"github.com/derekprior/fixture/internal/zone"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Days = 2
	cfg.Fields = 2
	cfg.MiddayBreak = &config.Break{Start: config.MustClock("13:00"), End: config.MustClock("14:00")}
	return &cfg
}

func testTeams() []config.Team {
	return zone.Assign([]config.Team{
		{Name: "Lions"}, {Name: "Tigers"}, {Name: "Bears"}, {Name: "Wolves"}, {Name: "Hawks"},
	}, zone.RoundRobin)
}

func generate(t *testing.T, cfg *config.Config, teams []config.Team) *schedule.Result {
	t.Helper()
	games := strategy.GenerateMatchups(teams, cfg.System, cfg.HomeAndAway)
	result, err := schedule.Schedule(schedule.RulesFromConfig(cfg), schedule.GenerateSlots(cfg), games)
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	return result
}

func rowsFrom(result *schedule.Result) []excel.FixtureRow {
	rows := make([]excel.FixtureRow, len(result.Assignments))
	for i, a := range result.Assignments {
		a.Slot.Index = -1
		rows[i] = excel.FixtureRow{Row: i + 2, Assignment: a}
	}
	return rows
}

func hasViolation(violations []Violation, typ, substr string) bool {
	for _, v := range violations {
		if v.Type == typ && strings.Contains(v.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateGeneratedSchedule(t *testing.T) {
	cfg := testConfig()
	teams := testTeams()
	result := generate(t, cfg, teams)

	f, err := excel.Generate(cfg, result, schedule.GenerateSlots(cfg), schedule.GenerateBreakSlots(cfg))
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fixture.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs error: %v", err)
	}
	f.Close()

	violations, err := Validate(cfg, teams, path)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	for _, v := range violations {
		t.Errorf("unexpected %s at row %d: %s", v.Type, v.Row, v.Message)
	}
}

func TestValidateMissingFile(t *testing.T) {
	if _, err := Validate(testConfig(), testTeams(), filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCheckSlotConflicts(t *testing.T) {
	cfg := testConfig()
	teams := testTeams()
	rows := rowsFrom(generate(t, cfg, teams))

	rows[1].Assignment.Slot = rows[0].Assignment.Slot
	violations := Check(cfg, teams, rows)
	if !hasViolation(violations, "error", "holds two matches") {
		t.Errorf("expected slot conflict, got %+v", violations)
	}
}

func TestCheckGrid(t *testing.T) {
	cfg := testConfig()
	teams := testTeams()
	rows := rowsFrom(generate(t, cfg, teams))

	t.Run("start inside the break", func(t *testing.T) {
		edited := append([]excel.FixtureRow(nil), rows...)
		edited[0].Assignment.Slot.Time = "13:00"
		if !hasViolation(Check(cfg, teams, edited), "error", "not an available slot") {
			t.Error("13:00 should be rejected during the midday break")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		edited := append([]excel.FixtureRow(nil), rows...)
		edited[0].Assignment.Slot.Field = "c9"
		if !hasViolation(Check(cfg, teams, edited), "error", "not an available slot") {
			t.Error("c9 should be rejected with two fields")
		}
	})

	t.Run("day past the tournament", func(t *testing.T) {
		edited := append([]excel.FixtureRow(nil), rows...)
		edited[0].Assignment.Slot.Day = 3
		if !hasViolation(Check(cfg, teams, edited), "error", "not an available slot") {
			t.Error("day 3 should be rejected with two days")
		}
	})
}

func TestCheckRest(t *testing.T) {
	cfg := testConfig()
	rows := []excel.FixtureRow{
		{Row: 2, Assignment: schedule.Assignment{
			Game: strategy.Game{Zone: "A", Home: "Lions", Away: "Tigers", Round: 1},
			Slot: schedule.Slot{Day: 1, Time: "09:00", Field: "c1"}, MatchID: 1,
		}},
		{Row: 3, Assignment: schedule.Assignment{
			Game: strategy.Game{Zone: "A", Home: "Bears", Away: "Lions", Round: 2},
			Slot: schedule.Slot{Day: 1, Time: "09:00", Field: "c2"}, MatchID: 2,
		}},
		{Row: 4, Assignment: schedule.Assignment{
			Game: strategy.Game{Zone: "A", Home: "Tigers", Away: "Bears", Round: 3},
			Slot: schedule.Slot{Day: 1, Time: "11:00", Field: "c1"}, MatchID: 3,
		}},
	}

	violations := checkRest(cfg, rows)
	if len(violations) != 1 {
		t.Fatalf("violations = %+v, want one for Lions", violations)
	}
	if violations[0].Row != 3 || !strings.Contains(violations[0].Message, "Lions rests only 0 minutes") {
		t.Errorf("violation = %+v", violations[0])
	}
}

func TestCheckDailyCap(t *testing.T) {
	cfg := testConfig()
	teams := testTeams()
	rows := rowsFrom(generate(t, cfg, teams))

	if v := checkDailyCap(cfg, rows); v != nil {
		t.Errorf("uncapped config reported %+v", v)
	}

	limit := 3
	cfg.MaxMatchesPerDay = &limit
	if !hasViolation(checkDailyCap(cfg, rows), "error", "(max 3)") {
		t.Error("expected a daily cap violation")
	}
}

func TestCheckCompleteness(t *testing.T) {
	cfg := testConfig()
	teams := testTeams()
	rows := rowsFrom(generate(t, cfg, teams))

	t.Run("missing match", func(t *testing.T) {
		dropped := rows[len(rows)-1].Assignment.Game
		violations := checkCompleteness(cfg, teams, rows[:len(rows)-1])
		want := dropped.Home + " vs " + dropped.Away + " is not scheduled"
		if !hasViolation(violations, "error", want) {
			t.Errorf("expected %q, got %+v", want, violations)
		}
	})

	t.Run("duplicate match", func(t *testing.T) {
		extra := rows[0]
		extra.Row = len(rows) + 2
		violations := checkCompleteness(cfg, teams, append(append([]excel.FixtureRow(nil), rows...), extra))
		if !hasViolation(violations, "error", "scheduled 2 times (want 1)") {
			t.Errorf("expected duplicate violation, got %+v", violations)
		}
	})

	t.Run("swapped home and away", func(t *testing.T) {
		edited := append([]excel.FixtureRow(nil), rows...)
		g := &edited[0].Assignment.Game
		g.Home, g.Away = g.Away, g.Home
		violations := checkCompleteness(cfg, teams, edited)
		if !hasViolation(violations, "error", "is not a required match") {
			t.Errorf("expected unrequired match, got %+v", violations)
		}
		if !hasViolation(violations, "error", "is not scheduled") {
			t.Errorf("expected missing match, got %+v", violations)
		}
	})

	t.Run("unknown team", func(t *testing.T) {
		edited := append([]excel.FixtureRow(nil), rows...)
		edited[0].Assignment.Game.Home = "Pumas"
		if !hasViolation(checkCompleteness(cfg, teams, edited), "error", "Pumas is not in the team list") {
			t.Error("expected unknown team violation")
		}
	})
}

func TestCheckMatchIDs(t *testing.T) {
	cfg := testConfig()
	rows := rowsFrom(generate(t, cfg, testTeams()))

	if v := checkMatchIDs(rows); v != nil {
		t.Errorf("generated IDs reported %+v", v)
	}

	edited := append([]excel.FixtureRow(nil), rows...)
	edited[0].Assignment.MatchID, edited[1].Assignment.MatchID = 2, 1
	violations := checkMatchIDs(edited)
	if len(violations) != 1 || violations[0].Type != "warning" {
		t.Errorf("violations = %+v, want one warning", violations)
	}
}
