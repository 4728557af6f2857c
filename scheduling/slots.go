// Package scheduling picks wall-clock times for matches under
// participant-availability constraints. Slot selection always terminates
// with a timestamp: when nothing scores well the first candidate wins.
package scheduling

import "time"

type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Constraint describes one participant's availability.
type Constraint struct {
	ParticipantID int        `json:"participant_id"`
	TimeZone      string     `json:"time_zone"`
	Busy          []Interval `json:"busy,omitempty"`
	Preferred     []Interval `json:"preferred,omitempty"`
}

type Options struct {
	Horizon      time.Duration // how far ahead candidates are generated
	DayStartHour int           // waking window, inclusive
	DayEndHour   int           // waking window, exclusive
	SlotStep     time.Duration
	BusyBuffer   time.Duration // padding around busy intervals
	RoundBuffer  time.Duration // spacing between matches of one round
}

func DefaultOptions() Options {
	return Options{
		Horizon:      7 * 24 * time.Hour,
		DayStartHour: 9,
		DayEndHour:   21,
		SlotStep:     30 * time.Minute,
		BusyBuffer:   2 * time.Hour,
		RoundBuffer:  90 * time.Minute,
	}
}

const (
	busyPenalty     = -50
	preferredBonus  = 25
	wakingBonus     = 10
	sleepingPenalty = -30
	minViableScore  = 0
)

// FindSlot scores every candidate slot in the horizon and returns the
// earliest maximum-scoring one. When no candidate reaches a viable
// score, the earliest candidate wins rather than the least-bad one.
func FindSlot(from time.Time, constraints []Constraint, opts Options) time.Time {
	candidates := Candidates(from, opts)
	if len(candidates) == 0 {
		return from
	}
	best := candidates[0]
	bestScore := Score(best, constraints, opts)
	for _, c := range candidates[1:] {
		if s := Score(c, constraints, opts); s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore < minViableScore {
		return candidates[0]
	}
	return best
}

// Viable reports whether a specific slot passes the same constraint
// check used for selection: no busy conflict and a non-negative score.
// Reschedule requests are refused when this fails.
func Viable(slot time.Time, constraints []Constraint, opts Options) bool {
	for _, c := range constraints {
		if busyAt(slot, c, opts) {
			return false
		}
	}
	return Score(slot, constraints, opts) >= minViableScore
}

// Candidates generates half-hour slots over the horizon, aligned to the
// step and clamped to the waking window of the reference clock.
func Candidates(from time.Time, opts Options) []time.Time {
	start := from.Truncate(opts.SlotStep)
	if start.Before(from) {
		start = start.Add(opts.SlotStep)
	}
	end := from.Add(opts.Horizon)

	var out []time.Time
	for t := start; t.Before(end); t = t.Add(opts.SlotStep) {
		if t.Hour() >= opts.DayStartHour && t.Hour() < opts.DayEndHour {
			out = append(out, t)
		}
	}
	return out
}

// Score rates one candidate slot against every participant's constraints.
func Score(slot time.Time, constraints []Constraint, opts Options) int {
	score := 0
	for _, c := range constraints {
		if busyAt(slot, c, opts) {
			score += busyPenalty
		}
		for _, iv := range c.Preferred {
			if iv.Contains(slot) {
				score += preferredBonus
				break
			}
		}
		if withinWakingHours(slot, c.TimeZone, opts) {
			score += wakingBonus
		} else {
			score += sleepingPenalty
		}
	}
	return score
}

func busyAt(slot time.Time, c Constraint, opts Options) bool {
	for _, iv := range c.Busy {
		padded := Interval{
			Start: iv.Start.Add(-opts.BusyBuffer),
			End:   iv.End.Add(opts.BusyBuffer),
		}
		if padded.Contains(slot) {
			return true
		}
	}
	return false
}

func withinWakingHours(slot time.Time, timeZone string, opts Options) bool {
	local := slot
	if timeZone != "" {
		if loc, err := time.LoadLocation(timeZone); err == nil {
			local = slot.In(loc)
		}
	}
	return local.Hour() >= opts.DayStartHour && local.Hour() < opts.DayEndHour
}

// RoundSlots assigns sequential slots for an entire round, spaced by the
// round buffer so nobody plays back-to-back.
func RoundSlots(from time.Time, matchCount int, constraints []Constraint, opts Options) []time.Time {
	out := make([]time.Time, 0, matchCount)
	cursor := from
	for i := 0; i < matchCount; i++ {
		slot := FindSlot(cursor, constraints, opts)
		out = append(out, slot)
		cursor = slot.Add(opts.RoundBuffer)
	}
	return out
}
