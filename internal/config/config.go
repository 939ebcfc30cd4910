package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a wrapper around time.Time for YAML date parsing.
type Date struct {
	Time time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date %s: %w", b, err)
	}
	return d.parse(s)
}

func (d *Date) parse(s string) error {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Clock is a time of day in minutes since midnight, written as "HH:MM".
type Clock int

// ParseClock parses "HH:MM". 24:00 is accepted so a day can end at midnight.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q: minutes must be two digits", s)
	}
	if hours < 0 || hours > 24 || minutes < 0 || minutes > 59 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return Clock(hours*60 + minutes), nil
}

// MustClock is ParseClock for constants; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Minutes() int { return int(c) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c *Clock) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseClock(value.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid time %s: %w", b, err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Break is a daily window in which no match may start, given as ["HH:MM", "HH:MM"].
type Break struct {
	Start Clock
	End   Clock
}

func (b *Break) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("midday_break: %w", err)
	}
	return b.set(pair)
}

func (b *Break) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("midday_break: %w", err)
	}
	return b.set(pair)
}

func (b Break) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{b.Start.String(), b.End.String()})
}

func (b *Break) set(pair []string) error {
	if len(pair) != 2 {
		return fmt.Errorf("midday_break must be [start, end], got %d values", len(pair))
	}
	start, err := ParseClock(pair[0])
	if err != nil {
		return fmt.Errorf("midday_break start: %w", err)
	}
	end, err := ParseClock(pair[1])
	if err != nil {
		return fmt.Errorf("midday_break end: %w", err)
	}
	b.Start, b.End = start, end
	return nil
}

// Team is one entry of the team list. Zone may be empty until assigned.
type Team struct {
	Name string `yaml:"name" json:"name"`
	Zone string `yaml:"zone" json:"zone"`
}

type Config struct {
	Title            string `yaml:"title" json:"title"`
	StartDate        *Date  `yaml:"start_date" json:"start_date"`
	System           string `yaml:"system" json:"system"`
	Days             int    `yaml:"days" json:"days"`
	Fields           int    `yaml:"fields" json:"fields"`
	StartTime        Clock  `yaml:"start_time" json:"start_time"`
	EndTime          Clock  `yaml:"end_time" json:"end_time"`
	MatchDuration    int    `yaml:"match_duration" json:"match_duration"`
	Rest             *int   `yaml:"rest" json:"rest"`
	MiddayBreak      *Break `yaml:"midday_break" json:"midday_break"`
	HomeAndAway      bool   `yaml:"home_and_away" json:"home_and_away"`
	MaxMatchesPerDay *int   `yaml:"max_matches_per_day" json:"max_matches_per_day"`
	TeamsFile        string `yaml:"teams_file" json:"teams_file"`
	Teams            []Team `yaml:"teams" json:"teams"`
}

// Default returns a Config populated with the documented defaults. Decoding
// into it leaves absent keys at their default values.
func Default() Config {
	return Config{
		System:        "rr",
		Days:          1,
		Fields:        1,
		StartTime:     MustClock("09:00"),
		EndTime:       MustClock("18:00"),
		MatchDuration: 60,
	}
}

// RestMinutes returns the minimum gap between two matches of one team.
// It defaults to the match duration.
func (c *Config) RestMinutes() int {
	if c.Rest == nil {
		return c.MatchDuration
	}
	return *c.Rest
}

// DailyCap returns the maximum matches per day, or 0 when uncapped.
func (c *Config) DailyCap() int {
	if c.MaxMatchesPerDay == nil {
		return 0
	}
	return *c.MaxMatchesPerDay
}

// AllTeams returns all inline team names in input order.
func (c *Config) AllTeams() []string {
	var names []string
	for _, t := range c.Teams {
		names = append(names, t.Name)
	}
	return names
}

// DayLabel formats day n for display, using StartDate when configured.
func (c *Config) DayLabel(day int) string {
	if c.StartDate == nil {
		return ""
	}
	return c.StartDate.Time.AddDate(0, 0, day-1).Format("2006-01-02")
}

// LoadFromBytes parses YAML bytes into a Config and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromJSON parses a JSON request body into a Config and validates it.
func LoadFromJSON(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads and parses a YAML config file. A relative teams_file is
// resolved against the config file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, err
	}
	if cfg.TeamsFile != "" && !filepath.IsAbs(cfg.TeamsFile) {
		cfg.TeamsFile = filepath.Join(filepath.Dir(path), cfg.TeamsFile)
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.System) == "" {
		return fmt.Errorf("system is required")
	}
	if c.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", c.Days)
	}
	if c.Fields < 1 {
		return fmt.Errorf("fields must be at least 1, got %d", c.Fields)
	}
	if c.MatchDuration <= 0 {
		return fmt.Errorf("match_duration must be positive, got %d", c.MatchDuration)
	}
	if c.EndTime <= c.StartTime {
		return fmt.Errorf("end_time %s must be after start_time %s", c.EndTime, c.StartTime)
	}
	if c.Rest != nil && *c.Rest < 0 {
		return fmt.Errorf("rest must not be negative, got %d", *c.Rest)
	}
	if c.MiddayBreak != nil && c.MiddayBreak.End <= c.MiddayBreak.Start {
		return fmt.Errorf("midday_break end %s must be after start %s", c.MiddayBreak.End, c.MiddayBreak.Start)
	}
	if c.MaxMatchesPerDay != nil && *c.MaxMatchesPerDay < 1 {
		return fmt.Errorf("max_matches_per_day must be positive, got %d", *c.MaxMatchesPerDay)
	}
	return ValidateTeams(c.Teams)
}

// ValidateTeams rejects a name repeated within one zone. Entries without a
// name are ignored; team sources drop them before scheduling.
func ValidateTeams(teams []Team) error {
	type key struct{ zone, name string }
	seen := make(map[key]bool)
	for _, t := range teams {
		k := key{strings.TrimSpace(t.Zone), strings.TrimSpace(t.Name)}
		if k.name == "" {
			continue
		}
		if seen[k] {
			if k.zone == "" {
				return fmt.Errorf("team %q appears more than once", k.name)
			}
			return fmt.Errorf("team %q appears more than once in zone %q", k.name, k.zone)
		}
		seen[k] = true
	}
	return nil
}
