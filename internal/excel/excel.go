package excel

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/schedule"
	"github.com/derekprior/fixture/internal/strategy"
	"github.com/xuri/excelize/v2"
)

const (
	FixtureSheet = "Fixture"
	GridSheet    = "Grid"
	MatchesSheet = "Matches"
	SlotsSheet   = "Slots"

	maxSheetName = 31
)

// ErrRender marks failures while building a workbook. A render failure never
// invalidates the schedule it was rendering.
var ErrRender = errors.New("rendering workbook")

// FixtureHeaders are the columns of the Fixture sheet, in order.
var FixtureHeaders = []string{"Day", "Date", "Time", "Field", "Home", "Away", "Zone", "Round", "ID"}

// Generate creates an Excel workbook with the printable fixture, a
// day/time by field grid and per-team sheets.
func Generate(cfg *config.Config, result *schedule.Result, slots []schedule.Slot, breaks []schedule.BlackoutSlot) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := writeFixture(f, cfg, result, slots, breaks); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeFixture(f *excelize.File, cfg *config.Config, result *schedule.Result, slots []schedule.Slot, breaks []schedule.BlackoutSlot) error {
	// Set default font for the workbook
	f.SetDefaultFont("Arial")

	if err := writeFixtureSheet(f, cfg, result.Assignments); err != nil {
		return fmt.Errorf("%w: writing fixture sheet: %w", ErrRender, err)
	}

	if err := writeGridSheet(f, cfg, result.Assignments, slots, breaks); err != nil {
		return fmt.Errorf("%w: writing grid sheet: %w", ErrRender, err)
	}

	if err := writeTeamSheets(f, result.Assignments); err != nil {
		return fmt.Errorf("%w: writing team sheets: %w", ErrRender, err)
	}
	return nil
}

// RoundLabel is the text printed in the Round column.
func RoundLabel(round int) string {
	return fmt.Sprintf("Round %d", round)
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    borders(),
	})
}

func borders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "#000000", Style: 1},
		{Type: "top", Color: "#000000", Style: 1},
		{Type: "right", Color: "#000000", Style: 1},
		{Type: "bottom", Color: "#000000", Style: 1},
	}
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) error {
	for i, h := range headers {
		if err := f.SetCellValue(sheet, cellRef(i+1, 1), h); err != nil {
			return err
		}
	}
	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cellRef(1, 1), cellRef(len(headers), 1), style)
}

// writeFixtureSheet writes one row per match in canonical order. Every day
// starts on a new printed page and the title goes in the page header.
func writeFixtureSheet(f *excelize.File, cfg *config.Config, assignments []schedule.Assignment) error {
	sheet := FixtureSheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	if err := writeHeaderRow(f, sheet, FixtureHeaders); err != nil {
		return err
	}

	cellStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Size: 9, Family: "Arial"},
		Border: borders(),
	})
	if err != nil {
		return err
	}

	currentDay := 0
	for i, a := range assignments {
		row := i + 2
		if currentDay != 0 && a.Slot.Day != currentDay {
			if err := f.InsertPageBreak(sheet, cellRef(1, row)); err != nil {
				return err
			}
		}
		currentDay = a.Slot.Day

		values := []interface{}{
			a.Slot.Day,
			cfg.DayLabel(a.Slot.Day),
			a.Slot.Time,
			a.Slot.Field,
			a.Game.Home,
			a.Game.Away,
			a.Game.Zone,
			RoundLabel(a.Game.Round),
			a.MatchID,
		}
		if err := f.SetSheetRow(sheet, cellRef(1, row), &values); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(values), row), cellStyle); err != nil {
			return err
		}
	}

	widths := map[string]float64{"A": 6, "B": 12, "C": 8, "D": 8, "E": 22, "F": 22, "G": 7, "H": 12, "I": 6}
	for col, w := range widths {
		f.SetColWidth(sheet, col, col, w)
	}

	size, orientation := 9, "portrait" // A4
	if err := f.SetPageLayout(sheet, &excelize.PageLayoutOptions{Size: &size, Orientation: &orientation}); err != nil {
		return err
	}
	if cfg.Title != "" {
		if err := f.SetHeaderFooter(sheet, &excelize.HeaderFooterOptions{
			OddHeader: `&C&"Arial,Bold"&14` + strings.ReplaceAll(cfg.Title, "&", "&&"),
			OddFooter: "&RPage &P of &N",
		}); err != nil {
			return err
		}
	}
	return f.SetDefinedName(&excelize.DefinedName{
		Name:     "_xlnm.Print_Titles",
		RefersTo: fmt.Sprintf("'%s'!$1:$1", sheet),
		Scope:    sheet,
	})
}

func writeGridSheet(f *excelize.File, cfg *config.Config, assignments []schedule.Assignment, slots []schedule.Slot, breaks []schedule.BlackoutSlot) error {
	sheet := GridSheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	var fieldNames []string
	for n := 1; n <= cfg.Fields; n++ {
		fieldNames = append(fieldNames, schedule.FieldName(n))
	}

	// Headers: Day, Date, Time, <field1>, <field2>, ...
	headers := append([]string{"Day", "Date", "Time"}, fieldNames...)
	if err := writeHeaderRow(f, sheet, headers); err != nil {
		return err
	}

	type slotKey struct {
		day   int
		time  string
		field string
	}
	assignmentMap := make(map[slotKey]schedule.Assignment)
	for _, a := range assignments {
		assignmentMap[slotKey{a.Slot.Day, a.Slot.Time, a.Slot.Field}] = a
	}
	blackoutMap := make(map[slotKey]string)
	for _, b := range breaks {
		blackoutMap[slotKey{b.Day, b.Time, b.Field}] = b.Reason
	}

	// Collect all unique (day, time) pairs from both slots and breaks
	type timeSlot struct {
		day     int
		time    string
		minutes int
	}
	seen := make(map[timeSlot]bool)
	var timeSlots []timeSlot
	add := func(day int, t string) {
		c, err := config.ParseClock(t)
		if err != nil {
			return
		}
		ts := timeSlot{day, t, c.Minutes()}
		if !seen[ts] {
			seen[ts] = true
			timeSlots = append(timeSlots, ts)
		}
	}
	for _, s := range slots {
		add(s.Day, s.Time)
	}
	for _, b := range breaks {
		add(b.Day, b.Time)
	}
	sort.Slice(timeSlots, func(i, j int) bool {
		if timeSlots[i].day != timeSlots[j].day {
			return timeSlots[i].day < timeSlots[j].day
		}
		return timeSlots[i].minutes < timeSlots[j].minutes
	})

	breakStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	for i, ts := range timeSlots {
		row := i + 2
		f.SetCellValue(sheet, cellRef(1, row), ts.day)
		f.SetCellValue(sheet, cellRef(2, row), cfg.DayLabel(ts.day))
		f.SetCellValue(sheet, cellRef(3, row), ts.time)

		for fi, fname := range fieldNames {
			col := fi + 4 // 1-indexed, after Day/Date/Time
			sk := slotKey{ts.day, ts.time, fname}
			if a, ok := assignmentMap[sk]; ok {
				f.SetCellValue(sheet, cellRef(col, row), fmt.Sprintf("%s vs %s", a.Game.Home, a.Game.Away))
				f.SetCellStyle(sheet, cellRef(col, row), cellRef(col, row), cellStyle)
			} else if reason, ok := blackoutMap[sk]; ok {
				f.SetCellValue(sheet, cellRef(col, row), reason)
				f.SetCellStyle(sheet, cellRef(col, row), cellRef(col, row), breakStyle)
			}
		}
	}

	f.SetColWidth(sheet, "A", "A", 6)
	f.SetColWidth(sheet, "B", "B", 12)
	f.SetColWidth(sheet, "C", "C", 8)
	for i := range fieldNames {
		col := colLetter(i + 4)
		f.SetColWidth(sheet, col, col, 30)
	}
	return nil
}

// teamSheetName returns a sheet name for a team. Excel limits names to 31
// characters and forbids a few symbols.
func teamSheetName(team string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, team)
	name = truncateName(name, maxSheetName)
	if strings.HasPrefix(name, "'") {
		name = "_" + name[1:]
	}
	if strings.HasSuffix(name, "'") {
		name = name[:len(name)-1] + "_"
	}
	return name
}

// truncateName cuts s to at most limit UTF-16 code units, the unit Excel
// measures sheet names in.
func truncateName(s string, limit int) string {
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if n+w > limit {
			return s[:i]
		}
		n += w
	}
	return s
}

// uniqueSheetName returns the sheet name for team, adding a " (2)", " (3)"...
// suffix when the name is already taken. Excel compares sheet names without
// case, so used is keyed by the lowercased name.
func uniqueSheetName(used map[string]bool, team string) string {
	base := teamSheetName(team)
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateName(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func writeTeamSheets(f *excelize.File, assignments []schedule.Assignment) error {
	var teams []string
	seen := make(map[string]bool)
	for _, a := range assignments {
		for _, team := range []string{a.Game.Home, a.Game.Away} {
			if !seen[team] {
				seen[team] = true
				teams = append(teams, team)
			}
		}
	}
	sort.Strings(teams)

	used := map[string]bool{
		strings.ToLower(FixtureSheet): true,
		strings.ToLower(GridSheet):    true,
	}
	for _, team := range teams {
		sheet := uniqueSheetName(used, team)
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		headers := []string{"Day", "Time", "Field", "Opponent", "Home/Away", "Round", "ID"}
		if err := writeHeaderRow(f, sheet, headers); err != nil {
			return err
		}

		row := 2
		for _, a := range assignments {
			var opponent, homeAway string
			switch team {
			case a.Game.Home:
				opponent, homeAway = a.Game.Away, "Home"
			case a.Game.Away:
				opponent, homeAway = a.Game.Home, "Away"
			default:
				continue
			}
			values := []interface{}{a.Slot.Day, a.Slot.Time, a.Slot.Field, opponent, homeAway, RoundLabel(a.Game.Round), a.MatchID}
			if err := f.SetSheetRow(sheet, cellRef(1, row), &values); err != nil {
				return err
			}
			row++
		}

		widths := map[string]float64{"A": 6, "B": 8, "C": 8, "D": 22, "E": 11, "F": 12, "G": 6}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}
	return nil
}

// GenerateParts writes the separate-lists workbook: pending matches and
// available slots, for placing matches by hand.
func GenerateParts(games []strategy.Game, slots []schedule.Slot) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := writeParts(f, games, slots); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeParts(f *excelize.File, games []strategy.Game, slots []schedule.Slot) error {
	f.SetDefaultFont("Arial")

	if err := f.SetSheetName(f.GetSheetName(0), MatchesSheet); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	if err := writeHeaderRow(f, MatchesSheet, []string{"Zone", "Round", "Home", "Away"}); err != nil {
		return fmt.Errorf("%w: writing matches sheet: %w", ErrRender, err)
	}
	for i, g := range games {
		values := []interface{}{g.Zone, g.Round, g.Home, g.Away}
		if err := f.SetSheetRow(MatchesSheet, cellRef(1, i+2), &values); err != nil {
			return fmt.Errorf("%w: writing matches sheet: %w", ErrRender, err)
		}
	}

	if _, err := f.NewSheet(SlotsSheet); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	if err := writeHeaderRow(f, SlotsSheet, []string{"Index", "Day", "Time", "Field"}); err != nil {
		return fmt.Errorf("%w: writing slots sheet: %w", ErrRender, err)
	}
	for i, s := range slots {
		values := []interface{}{s.Index, s.Day, s.Time, s.Field}
		if err := f.SetSheetRow(SlotsSheet, cellRef(1, i+2), &values); err != nil {
			return fmt.Errorf("%w: writing slots sheet: %w", ErrRender, err)
		}
	}
	return nil
}

// FixtureRow is one match read back from a Fixture sheet. Row is the
// 1-based spreadsheet row.
type FixtureRow struct {
	Row        int
	Assignment schedule.Assignment
}

// ReadFixture parses the Fixture sheet of a workbook. Rows that do not parse
// as a match are skipped.
func ReadFixture(f *excelize.File) ([]FixtureRow, error) {
	rows, err := f.GetRows(FixtureSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FixtureSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty", FixtureSheet)
	}

	var out []FixtureRow
	for i, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		day, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		get := func(col int) string {
			if col < len(row) {
				return strings.TrimSpace(row[col])
			}
			return ""
		}
		round, _ := strconv.Atoi(strings.TrimPrefix(get(7), "Round "))
		id, _ := strconv.Atoi(get(8))
		out = append(out, FixtureRow{
			Row: i + 2,
			Assignment: schedule.Assignment{
				Game: strategy.Game{
					Zone:  get(6),
					Home:  get(4),
					Away:  get(5),
					Round: round,
				},
				Slot: schedule.Slot{
					Day:   day,
					Time:  get(2),
					Field: get(3),
					Index: -1,
				},
				MatchID: id,
			},
		})
	}
	return out, nil
}

// UpdateTeamSheets regenerates the per-team sheets of a saved workbook from
// its (possibly hand-edited) Fixture sheet.
func UpdateTeamSheets(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := ReadFixture(f)
	if err != nil {
		return err
	}
	assignments := make([]schedule.Assignment, len(rows))
	for i, r := range rows {
		assignments[i] = r.Assignment
	}

	for _, sheet := range f.GetSheetList() {
		if sheet == FixtureSheet || sheet == GridSheet {
			continue
		}
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("removing sheet %s: %w", sheet, err)
		}
	}
	if err := writeTeamSheets(f, assignments); err != nil {
		return fmt.Errorf("%w: writing team sheets: %w", ErrRender, err)
	}
	return f.Save()
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
