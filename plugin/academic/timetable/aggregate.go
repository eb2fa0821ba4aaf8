package timetable

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

// Counts maps a subject label to a number of classes.
type Counts map[string]int

// Total sums every count.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Labels returns the labels in lexical order.
func (c Counts) Labels() []string {
	labels := make([]string, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// ErrInvalidDateRange is returned when the target date precedes the start
// date or either date is zero.
var ErrInvalidDateRange = errors.New("invalid date range")

// Label rewrites applied before counting. A rewrite to "" drops the period.
const (
	LabelSkillCourse = "Skill course"
	LabelSGA         = "SGA"
	LabelHardwareLab = "Hardware Lab"
)

// applyLabelRules recodes institution-specific labels. "TA" must appear as
// its own token so that labels like "Data Structures" are untouched.
func applyLabelRules(day time.Weekday, period int, label string) string {
	lower := strings.ToLower(label)
	tokens := tokenize(lower)

	if day == time.Wednesday && period == 7 && tokens["ta"] {
		return LabelSkillCourse
	}
	if day == time.Friday && period == 4 && tokens["ta"] && tokens["sga"] {
		return LabelSGA
	}
	if strings.Contains(lower, "hardware lab") {
		return LabelHardwareLab
	}
	return label
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[f] = true
	}
	return tokens
}

// dayCounts counts the non-free periods of one day after label rules.
func dayCounts(s *Schedule, day time.Weekday, into Counts) {
	if day == time.Sunday {
		return
	}
	for period := 1; period <= PeriodsPerDay; period++ {
		slot := s.Slot(day, period)
		if slot.IsFree() {
			continue
		}
		label := applyLabelRules(day, period, strings.TrimSpace(slot.Name))
		if label == "" {
			continue
		}
		into[label]++
	}
}

// WeeklyCount counts classes per label over Monday to Saturday.
func WeeklyCount(s *Schedule) Counts {
	counts := make(Counts)
	if s == nil {
		return counts
	}
	for day := time.Monday; day <= time.Saturday; day++ {
		dayCounts(s, day, counts)
	}
	return counts
}

// DefaultTermStart guesses the current term start: January 15 for January
// to May, August 15 for August to December, otherwise January 15.
func DefaultTermStart(now time.Time) time.Time {
	month := now.Month()
	if month >= time.August && month <= time.December {
		return time.Date(now.Year(), time.August, 15, 0, 0, 0, 0, now.Location())
	}
	return time.Date(now.Year(), time.January, 15, 0, 0, 0, 0, now.Location())
}

// TotalUpToDate counts classes per label from start through target, both
// inclusive, by calendar date. Full weeks use the weekly count; the
// remaining days are counted one by one from start's weekday.
func TotalUpToDate(s *Schedule, target, start time.Time) (Counts, error) {
	counts := make(Counts)
	if target.IsZero() || start.IsZero() {
		return counts, errors.Wrap(ErrInvalidDateRange, "missing date")
	}
	days := civilDay(target) - civilDay(start)
	if days < 0 {
		return counts, errors.Wrapf(ErrInvalidDateRange, "target %s is before start %s",
			target.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if s == nil {
		return counts, nil
	}

	totalDays := days + 1
	fullWeeks := int(totalDays / 7)
	remainder := int(totalDays % 7)

	for label, n := range WeeklyCount(s) {
		counts[label] = n * fullWeeks
	}
	startDay := start.Weekday()
	for i := 0; i < remainder; i++ {
		dayCounts(s, (startDay+time.Weekday(i))%7, counts)
	}
	return counts, nil
}

// civilDay numbers calendar dates so that consecutive dates differ by one
// regardless of zone offsets.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
