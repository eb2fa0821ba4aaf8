package timetable

import (
	"log/slog"
	"time"

	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/matcher"
)

// Aggregator binds the timetable functions to one matcher and one clock.
// It logs and degrades to empty results instead of returning errors.
type Aggregator struct {
	matcher *matcher.Matcher
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator. A nil matcher uses matcher.New().
func NewAggregator(m *matcher.Matcher, opts ...Option) *Aggregator {
	if m == nil {
		m = matcher.New()
	}
	a := &Aggregator{matcher: m, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Matcher returns the shared matcher.
func (a *Aggregator) Matcher() *matcher.Matcher {
	return a.matcher
}

func (a *Aggregator) WeeklyCount(s *Schedule) Counts {
	return WeeklyCount(s)
}

// TotalUpToDate counts classes through target. A nil start uses
// DefaultTermStart for the current date.
func (a *Aggregator) TotalUpToDate(s *Schedule, target time.Time, start *time.Time) Counts {
	from := DefaultTermStart(a.now().In(target.Location()))
	if start != nil {
		from = *start
	}
	counts, err := TotalUpToDate(s, target, from)
	if err != nil {
		slog.Warn("cannot count classes for date range",
			slog.String("target", target.Format(time.DateOnly)),
			slog.String("start", from.Format(time.DateOnly)),
			slog.String("error", err.Error()),
		)
	}
	return counts
}

func (a *Aggregator) ClassesFromAttendance(s *Schedule, record *attendance.Record) AttendanceClasses {
	return ClassesFromAttendance(s, record, a.matcher)
}

// Summary reports the weekly load. Classes so far come from attendance when
// record is non-nil, else from the date projection when target is set.
func (a *Aggregator) Summary(s *Schedule, record *attendance.Record, target *time.Time) Summary {
	weekly := WeeklyCount(s)
	summary := Summary{
		TotalSubjects:           len(weekly),
		TotalWeeklyClasses:      weekly.Total(),
		WeeklyClassesPerSubject: weekly,
	}
	if summary.TotalSubjects > 0 {
		summary.AverageClassesPerSubject = round2(float64(summary.TotalWeeklyClasses) / float64(summary.TotalSubjects))
	}

	switch {
	case record != nil:
		classes := a.ClassesFromAttendance(s, record)
		summary.ClassesUpToDate = classes.Hours
		summary.TotalClassesUpToDate = classes.Hours.Total()
		summary.Unmatched = classes.Unmatched
		summary.Source = SourceAttendance
	case target != nil:
		counts := a.TotalUpToDate(s, *target, nil)
		summary.ClassesUpToDate = counts
		summary.TotalClassesUpToDate = counts.Total()
		summary.Source = SourceProjection
	}
	return summary
}

func (a *Aggregator) NextClass(s *Schedule) NextClassInfo {
	return NextClass(s, a.now())
}

func (a *Aggregator) TomorrowFirstClass(s *Schedule) *ClassInfo {
	return TomorrowFirstClass(s, a.now())
}
