// Package projection answers "what if" questions about attendance: the
// percentage reached by attending every remaining class, and how many
// classes can be skipped while holding a target percentage.
package projection

import (
	"math"
	"time"

	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/matcher"
	"github.com/hrygo/etlabplus/plugin/academic/timetable"
)

// Skip targets offered by default.
const (
	DefaultTargetPercentage = 75.0
	HighTargetPercentage    = 85.0
)

// Base holds the fields shared by every projection.
type Base struct {
	Code              string  `json:"code"`
	CurrentPresent    int     `json:"currentPresent"`
	CurrentTotal      int     `json:"currentTotal"`
	CurrentPercentage float64 `json:"currentPercentage"`
	AdditionalClasses int     `json:"additionalClasses"`

	// Matched is false when no timetable label maps to the code, in which
	// case AdditionalClasses is 0.
	Matched bool `json:"matched"`

	// Malformed is true when the attendance hours did not parse.
	Malformed bool `json:"malformed,omitempty"`
}

// Perfect is the outcome of attending every remaining class.
type Perfect struct {
	Base
	ProjectedPresent    int     `json:"projectedPresent"`
	ProjectedTotal      int     `json:"projectedTotal"`
	ProjectedPercentage float64 `json:"projectedPercentage"`
}

// Skip is the skip budget for a target percentage.
type Skip struct {
	Base
	TargetPercentage  float64 `json:"targetPercentage"`
	FinalTotal        int     `json:"finalTotal"`
	MinClassesNeeded  int     `json:"minClassesNeeded"`
	MaxCanAttend      int     `json:"maxCanAttend"`
	CanSkip           int     `json:"canSkip"`
	OptimalPresent    int     `json:"optimalPresent"`
	OptimalPercentage float64 `json:"optimalPercentage"`
	CanMaintainTarget bool    `json:"canMaintainTarget"`
}

// Analysis bundles the perfect projection and the two preset skip budgets.
type Analysis struct {
	PerfectAttendance map[string]Perfect `json:"perfectAttendance"`
	Skip75            map[string]Skip    `json:"skip75"`
	Skip85            map[string]Skip    `json:"skip85"`
	TargetDate        string             `json:"targetDate"`
}

// Projector runs projections with one matcher and one clock.
type Projector struct {
	matcher *matcher.Matcher
	now     func() time.Time
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		p.now = now
	}
}

// New creates a Projector. A nil matcher uses matcher.New().
func New(m *matcher.Matcher, opts ...Option) *Projector {
	if m == nil {
		m = matcher.New()
	}
	p := &Projector{matcher: m, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WeeksUntil returns the fractional number of weeks from now to target,
// never negative.
func WeeksUntil(now, target time.Time) float64 {
	return math.Max(0, target.Sub(now).Hours()/(7*24))
}

// weeklyByCode sums, per code, the weekly counts of every label the matcher
// maps to it.
func (p *Projector) weeklyByCode(record *attendance.Record, schedule *timetable.Schedule) map[string]int {
	weekly := timetable.WeeklyCount(schedule)
	mapping := p.matcher.Map(weekly.Labels(), record.Codes())

	byCode := make(map[string]int)
	for _, code := range record.Codes() {
		for _, label := range mapping.LabelsFor(code) {
			byCode[code] += weekly[label]
		}
	}
	return byCode
}

func (p *Projector) bases(record *attendance.Record, schedule *timetable.Schedule, target time.Time) []Base {
	if record == nil || schedule == nil {
		return nil
	}
	weeks := WeeksUntil(p.now(), target)
	weekly := p.weeklyByCode(record, schedule)

	bases := make([]Base, 0, len(record.Subjects))
	for _, s := range record.Subjects {
		perWeek, matched := weekly[s.Code]
		bases = append(bases, Base{
			Code:              s.Code,
			CurrentPresent:    s.PresentHours,
			CurrentTotal:      s.TotalHours,
			CurrentPercentage: s.Percentage,
			AdditionalClasses: int(math.Ceil(float64(perWeek) * weeks)),
			Matched:           matched,
			Malformed:         s.Malformed(),
		})
	}
	return bases
}

// PerfectAttendance projects attending every class until target.
func (p *Projector) PerfectAttendance(record *attendance.Record, schedule *timetable.Schedule, target time.Time) map[string]Perfect {
	results := make(map[string]Perfect)
	for _, b := range p.bases(record, schedule, target) {
		r := Perfect{
			Base:             b,
			ProjectedPresent: b.CurrentPresent + b.AdditionalClasses,
			ProjectedTotal:   b.CurrentTotal + b.AdditionalClasses,
		}
		if r.ProjectedTotal > 0 {
			r.ProjectedPercentage = round2(float64(r.ProjectedPresent) / float64(r.ProjectedTotal) * 100)
		}
		results[b.Code] = r
	}
	return results
}

// Skippable computes the skip budget for targetPercentage until target.
// A targetPercentage outside (0, 100] yields an empty result.
func (p *Projector) Skippable(record *attendance.Record, schedule *timetable.Schedule, target time.Time, targetPercentage float64) map[string]Skip {
	results := make(map[string]Skip)
	if !(targetPercentage > 0 && targetPercentage <= 100) {
		return results
	}
	for _, b := range p.bases(record, schedule, target) {
		r := Skip{
			Base:             b,
			TargetPercentage: targetPercentage,
			FinalTotal:       b.CurrentTotal + b.AdditionalClasses,
			MaxCanAttend:     b.CurrentPresent + b.AdditionalClasses,
		}
		r.MinClassesNeeded = int(math.Ceil(targetPercentage / 100 * float64(r.FinalTotal)))
		r.CanSkip = max(0, r.MaxCanAttend-r.MinClassesNeeded)
		r.OptimalPresent = min(r.MaxCanAttend, max(r.MinClassesNeeded, r.CurrentPresent))

		var optimal float64
		if r.FinalTotal > 0 {
			optimal = float64(r.OptimalPresent) / float64(r.FinalTotal) * 100
		}
		r.OptimalPercentage = round2(optimal)
		r.CanMaintainTarget = optimal >= targetPercentage
		results[b.Code] = r
	}
	return results
}

// Comprehensive runs the perfect projection and the 75 and 85 skip budgets.
func (p *Projector) Comprehensive(record *attendance.Record, schedule *timetable.Schedule, target time.Time) Analysis {
	return Analysis{
		PerfectAttendance: p.PerfectAttendance(record, schedule, target),
		Skip75:            p.Skippable(record, schedule, target, DefaultTargetPercentage),
		Skip85:            p.Skippable(record, schedule, target, HighTargetPercentage),
		TargetDate:        target.Format(time.DateOnly),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
