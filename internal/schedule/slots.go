package schedule

import (
	"fmt"

	"github.com/derekprior/fixture/internal/config"
)

const minutesPerDay = 24 * 60

// Slot represents an available match slot: a day, a start time and a field.
// Index gives the global chronological order of slots.
type Slot struct {
	Day   int    `json:"day"`
	Time  string `json:"time"` // "09:00", "10:30", etc.
	Field string `json:"field"`
	Index int    `json:"index"`
}

// Absolute returns the slot start in minutes from the start of day 1. It
// panics on a malformed Time; slots built by Enumerate are always well formed.
func (s Slot) Absolute() int {
	at, err := s.start()
	if err != nil {
		panic(err)
	}
	return at
}

func (s Slot) start() (int, error) {
	c, err := config.ParseClock(s.Time)
	if err != nil {
		return 0, fmt.Errorf("slot %d: %w", s.Index, err)
	}
	return (s.Day-1)*minutesPerDay + c.Minutes(), nil
}

// BlackoutSlot represents a time on a field where no match can start, with a reason.
type BlackoutSlot struct {
	Day    int
	Time   string
	Field  string
	Reason string
}

// SlotGrid describes the daily playing window that slots are cut from.
type SlotGrid struct {
	Days          int
	Fields        int
	Start         config.Clock
	End           config.Clock
	MatchDuration int
	Break         *config.Break
}

// GridFromConfig extracts the slot grid from a config.
func GridFromConfig(cfg *config.Config) SlotGrid {
	return SlotGrid{
		Days:          cfg.Days,
		Fields:        cfg.Fields,
		Start:         cfg.StartTime,
		End:           cfg.EndTime,
		MatchDuration: cfg.MatchDuration,
		Break:         cfg.MiddayBreak,
	}
}

// FieldName returns the label of the n-th field, counting from 1.
func FieldName(n int) string {
	return fmt.Sprintf("c%d", n)
}

// GenerateSlots builds all available (day, time, field) slots for the config.
func GenerateSlots(cfg *config.Config) []Slot {
	return Enumerate(GridFromConfig(cfg))
}

// Enumerate walks every day from the start time in match-duration steps while
// a whole match still fits before the end time. A start inside the break
// window jumps to the end of the break instead. Every retained start yields
// one slot per field. The result is ordered by Index.
func Enumerate(g SlotGrid) []Slot {
	if g.MatchDuration <= 0 {
		return nil
	}
	var slots []Slot
	index := 0
	for day := 1; day <= g.Days; day++ {
		for _, t := range startTimes(g) {
			for f := 1; f <= g.Fields; f++ {
				slots = append(slots, Slot{Day: day, Time: t.String(), Field: FieldName(f), Index: index})
				index++
			}
		}
	}
	return slots
}

// startTimes returns the match start times of one day.
func startTimes(g SlotGrid) []config.Clock {
	var times []config.Clock
	current := g.Start.Minutes()
	end := g.End.Minutes()
	for current+g.MatchDuration <= end {
		if g.Break != nil && g.Break.Start.Minutes() <= current && current < g.Break.End.Minutes() {
			current = g.Break.End.Minutes()
			continue
		}
		times = append(times, config.Clock(current))
		current += g.MatchDuration
	}
	return times
}

// GenerateBreakSlots returns, for display, one blackout per day and field at
// the start of the midday break. It returns nil when no break is configured
// or the break lies outside the playing window.
func GenerateBreakSlots(cfg *config.Config) []BlackoutSlot {
	b := cfg.MiddayBreak
	if b == nil || b.End <= cfg.StartTime || b.Start >= cfg.EndTime {
		return nil
	}
	var blackouts []BlackoutSlot
	for day := 1; day <= cfg.Days; day++ {
		for f := 1; f <= cfg.Fields; f++ {
			blackouts = append(blackouts, BlackoutSlot{
				Day:    day,
				Time:   b.Start.String(),
				Field:  FieldName(f),
				Reason: "Midday break",
			})
		}
	}
	return blackouts
}
