package teams

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/derekprior/fixture/internal/config"
	"github.com/xuri/excelize/v2"
)

// ErrNoTeams is returned when a team source yields no named teams.
var ErrNoTeams = errors.New("no teams loaded")

var (
	zoneHeaders = []string{"zona", "zone"}
	nameHeaders = []string{"equipos", "equipo", "teams", "team", "name"}
)

// LoadFromFile reads teams from a ';'-delimited .csv file or the first sheet
// of an .xlsx workbook.
func LoadFromFile(path string) ([]config.Team, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readWorkbook(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening teams file: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	}
}

// ReadCSV parses a ';'-delimited team list with a "Zona;Equipos" (or
// "Zone;Team") header. Rows without a team name are dropped.
func ReadCSV(r io.Reader) ([]config.Team, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading teams csv: %w", err)
	}
	return fromRows(records)
}

func readWorkbook(path string) ([]config.Team, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening teams workbook: %w", err)
	}
	defer file.Close()
	return ReadWorkbook(file)
}

// ReadWorkbook parses teams from the first sheet of an .xlsx stream, using
// the same headers as ReadCSV.
func ReadWorkbook(r io.Reader) ([]config.Team, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening teams workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoTeams
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]config.Team, error) {
	if len(rows) == 0 {
		return nil, ErrNoTeams
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	zoneCol := column(header, zoneHeaders)
	nameCol := column(header, nameHeaders)
	if nameCol < 0 {
		return nil, fmt.Errorf("team list header %q has no team column (want one of %s)",
			strings.Join(header, ";"), strings.Join(nameHeaders, ", "))
	}

	var teams []config.Team
	for _, row := range rows[1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		teams = append(teams, config.Team{Name: name, Zone: cell(row, zoneCol)})
	}
	if len(teams) == 0 {
		return nil, ErrNoTeams
	}
	if err := config.ValidateTeams(teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Resolve returns the teams a config names: the teams_file when set,
// otherwise the inline list.
func Resolve(cfg *config.Config) ([]config.Team, error) {
	if cfg.TeamsFile != "" {
		return LoadFromFile(cfg.TeamsFile)
	}
	list := Clean(cfg.Teams)
	if len(list) == 0 {
		return nil, ErrNoTeams
	}
	return list, nil
}

// Clean trims names and zones and drops entries without a name.
func Clean(in []config.Team) []config.Team {
	var out []config.Team
	for _, t := range in {
		t.Name = strings.TrimSpace(t.Name)
		t.Zone = strings.TrimSpace(t.Zone)
		if t.Name == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
