// Package timetable normalizes the weekly timetable and derives class
// counts and next-class information from it.
package timetable

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PeriodsPerDay is the number of teaching periods in a day.
const PeriodsPerDay = 7

// Slot is one timetable period.
type Slot struct {
	Name    string `json:"name"`
	Teacher string `json:"teacher,omitempty"`
}

// IsFree reports whether the period has no class: no slot, an empty name,
// or a name containing "free" in any case.
func (s *Slot) IsFree() bool {
	if s == nil {
		return true
	}
	name := strings.TrimSpace(s.Name)
	return name == "" || strings.Contains(strings.ToLower(name), "free")
}

// Schedule is a weekly timetable indexed by weekday and period.
type Schedule struct {
	days [7][PeriodsPerDay]*Slot
}

// NewSchedule returns an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{}
}

// Slot returns the slot for a 1-based period, or nil.
func (s *Schedule) Slot(day time.Weekday, period int) *Slot {
	if s == nil || period < 1 || period > PeriodsPerDay || day < time.Sunday || day > time.Saturday {
		return nil
	}
	return s.days[day][period-1]
}

// Set assigns a slot to a 1-based period. Out-of-range periods are ignored.
func (s *Schedule) Set(day time.Weekday, period int, slot *Slot) *Schedule {
	if period < 1 || period > PeriodsPerDay || day < time.Sunday || day > time.Saturday {
		return s
	}
	s.days[day][period-1] = slot
	return s
}

// Class is shorthand for Set with a named slot.
func (s *Schedule) Class(day time.Weekday, period int, name string) *Schedule {
	return s.Set(day, period, &Slot{Name: name})
}

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayName returns the lowercase payload name of a weekday.
func DayName(day time.Weekday) string {
	return dayNames[day]
}

// Parse normalizes a portal timetable payload.
//
// Days are keyed by lowercase name. Periods may be spelled "period-N" or
// "periodN"; the hyphenated key wins when both carry a slot. Slots that are
// null or not objects are treated as absent.
func Parse(data []byte) (*Schedule, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode timetable")
	}

	schedule := NewSchedule()
	for key, value := range raw {
		day, ok := parseDay(key)
		if !ok {
			continue
		}
		var periods map[string]json.RawMessage
		if err := json.Unmarshal(value, &periods); err != nil {
			continue
		}
		for i := 1; i <= PeriodsPerDay; i++ {
			n := strconv.Itoa(i)
			slot := decodeSlot(periods["period-"+n])
			if slot == nil {
				slot = decodeSlot(periods["period"+n])
			}
			schedule.days[day][i-1] = slot
		}
	}
	return schedule, nil
}

func parseDay(key string) (time.Weekday, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for i, name := range dayNames {
		if name == key {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

func decodeSlot(raw json.RawMessage) *Slot {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var payload struct {
		Name    *string `json:"name"`
		Teacher *string `json:"teacher"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil
	}
	slot := &Slot{}
	if payload.Name != nil {
		slot.Name = *payload.Name
	}
	if payload.Teacher != nil {
		slot.Teacher = *payload.Teacher
	}
	return slot
}

// MarshalJSON writes the canonical payload shape with "period-N" keys.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]*Slot)
	for d := time.Sunday; d <= time.Saturday; d++ {
		periods := make(map[string]*Slot)
		for i, slot := range s.days[d] {
			if slot != nil {
				periods["period-"+strconv.Itoa(i+1)] = slot
			}
		}
		if len(periods) > 0 {
			out[dayNames[d]] = periods
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either period spelling.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
