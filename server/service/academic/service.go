// Package academic answers questions about the cached portal datasets:
// timetable load, attendance projections, the next class and result
// analysis.
//
// Every read goes through the cache fallback path, so a stale dataset is
// still served and reported as Stale. Only a dataset that was never synced
// is an error.
package academic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/internal/observability"
	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/matcher"
	"github.com/hrygo/etlabplus/plugin/academic/projection"
	"github.com/hrygo/etlabplus/plugin/academic/results"
	"github.com/hrygo/etlabplus/plugin/academic/timetable"
	"github.com/hrygo/etlabplus/server/timezone"
	"github.com/hrygo/etlabplus/store/cache"
)

// Cache is the subset of *cache.Manager the service reads and writes.
type Cache interface {
	GetTimetable(ctx context.Context) *cache.Entry
	GetAttendance(ctx context.Context) *cache.Entry
	GetResults(ctx context.Context) *cache.Entry
	GetEndSemResults(ctx context.Context) *cache.Entry
	GetProfile(ctx context.Context) *cache.Entry
	GetAIChatHistory(ctx context.Context) *cache.Entry
	GetTheme(ctx context.Context) *cache.Entry
	SaveTheme(ctx context.Context, mode string) bool
	SaveAIChatHistory(ctx context.Context, data any) bool
}

// Theme modes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Meta describes the cache entry a response was computed from.
type Meta struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Stale     bool      `json:"stale"`
}

func metaOf(entry *cache.Entry) Meta {
	return Meta{UpdatedAt: entry.WrittenAt, Stale: entry.IsFallback}
}

// Service computes analytics over cached datasets.
type Service struct {
	cache      Cache
	asker      Asker
	matcher    *matcher.Matcher
	aggregator *timetable.Aggregator
	projector  *projection.Projector
	loc        *time.Location
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation sets the zone used for "today" and the teaching day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMatcher replaces the default subject matcher.
func WithMatcher(m *matcher.Matcher) Option {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

// NewService creates a Service. The asker may be nil when AI queries are
// not used.
func NewService(c Cache, asker Asker, opts ...Option) *Service {
	s := &Service{
		cache:   c,
		asker:   asker,
		matcher: matcher.New(),
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	clock := func() time.Time { return s.now().In(s.loc) }
	s.aggregator = timetable.NewAggregator(s.matcher, timetable.WithClock(clock))
	s.projector = projection.New(s.matcher, projection.WithClock(clock))
	return s
}

// Today returns midnight of the current day in the service zone.
func (s *Service) Today() time.Time {
	return timezone.StartOfDay(s.now(), s.loc)
}

func (s *Service) read(ctx context.Context, get func(context.Context) *cache.Entry, name string) (*cache.Entry, error) {
	entry := get(ctx)
	if entry == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("%s is not cached, run sync first", name)).
			WithContext(observability.LogFieldDataset, name)
	}
	if entry.IsFallback {
		slog.Debug("serving stale dataset",
			slog.String(observability.LogFieldDataset, name),
			slog.Duration("age", entry.Age),
		)
	}
	return entry, nil
}

// Attendance returns the cached attendance record.
func (s *Service) Attendance(ctx context.Context) (*attendance.Record, Meta, error) {
	entry, err := s.read(ctx, s.cache.GetAttendance, "attendance")
	if err != nil {
		return nil, Meta{}, err
	}
	record, err := attendance.Parse(entry.Data)
	if err != nil {
		return nil, Meta{}, apperrors.ParseFailure("cached attendance is not readable", err)
	}
	for _, perr := range record.ParseErrors() {
		slog.Debug("attendance field ignored", slog.String("error", perr.Error()))
	}
	return record, metaOf(entry), nil
}

// Timetable returns the cached weekly schedule.
func (s *Service) Timetable(ctx context.Context) (*timetable.Schedule, Meta, error) {
	entry, err := s.read(ctx, s.cache.GetTimetable, "timetable")
	if err != nil {
		return nil, Meta{}, err
	}
	schedule, err := timetable.Parse(entry.Data)
	if err != nil {
		return nil, Meta{}, apperrors.ParseFailure("cached timetable is not readable", err)
	}
	return schedule, metaOf(entry), nil
}

// Exams returns the cached internal exam results.
func (s *Service) Exams(ctx context.Context) ([]results.Exam, Meta, error) {
	entry, err := s.read(ctx, s.cache.GetResults, "results")
	if err != nil {
		return nil, Meta{}, err
	}
	exams, err := results.ParseExams(entry.Data)
	if err != nil {
		return nil, Meta{}, apperrors.ParseFailure("cached results are not readable", err)
	}
	return exams, metaOf(entry), nil
}

// Semesters returns the cached end-semester grades, empty semesters dropped.
func (s *Service) Semesters(ctx context.Context) ([]results.Semester, Meta, error) {
	entry, err := s.read(ctx, s.cache.GetEndSemResults, "endSemResults")
	if err != nil {
		return nil, Meta{}, err
	}
	semesters, err := results.ParseSemesters(entry.Data)
	if err != nil {
		return nil, Meta{}, apperrors.ParseFailure("cached end-semester results are not readable", err)
	}
	return semesters, metaOf(entry), nil
}

// Profile returns the cached profile payload as received from the portal.
func (s *Service) Profile(ctx context.Context) (json.RawMessage, Meta, error) {
	entry, err := s.read(ctx, s.cache.GetProfile, "profile")
	if err != nil {
		return nil, Meta{}, err
	}
	return entry.Data, metaOf(entry), nil
}

// optionalAttendance reads attendance for analyses that can do without it.
func (s *Service) optionalAttendance(ctx context.Context) *attendance.Record {
	record, _, err := s.Attendance(ctx)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			slog.Warn("continuing without attendance", slog.String("error", err.Error()))
		}
		return nil
	}
	return record
}

// TimetableSummary is the weekly load with formatted lines.
type TimetableSummary struct {
	timetable.Summary
	Weekly   []timetable.Line `json:"weekly"`
	UpToDate []timetable.Line `json:"upToDate,omitempty"`
	Meta
}

// TimetableSummary reports weekly counts and classes held so far. Classes
// so far come from attendance when it is cached, otherwise from the date
// projection up to target. A nil target means today.
func (s *Service) TimetableSummary(ctx context.Context, target *time.Time) (*TimetableSummary, error) {
	schedule, meta, err := s.Timetable(ctx)
	if err != nil {
		return nil, err
	}
	if target == nil {
		today := s.Today()
		target = &today
	}

	summary := s.aggregator.Summary(schedule, s.optionalAttendance(ctx), target)
	for _, label := range summary.Unmatched {
		slog.Debug("timetable label left out of attendance totals",
			slog.String(observability.LogFieldErrorCode, string(apperrors.ErrCodeUnmatchedSubject)),
			slog.String("label", label),
		)
	}

	out := &TimetableSummary{
		Summary: summary,
		Weekly:  timetable.FormatCounts(summary.WeeklyClassesPerSubject, timetable.KindWeekly),
		Meta:    meta,
	}
	if len(summary.ClassesUpToDate) > 0 {
		out.UpToDate = timetable.FormatCounts(summary.ClassesUpToDate, timetable.KindTotal)
	}
	return out, nil
}

// Projection is the attendance outlook up to a target date.
type Projection struct {
	projection.Analysis

	// Custom holds the skip budget for a percentage other than 75 and 85.
	Custom           map[string]projection.Skip `json:"custom,omitempty"`
	CustomPercentage float64                    `json:"customPercentage,omitempty"`
	Meta
}

// Project runs the perfect-attendance and skip projections up to target.
// A percent of 0 skips the custom budget.
func (s *Service) Project(ctx context.Context, target time.Time, percent float64) (*Projection, error) {
	if target.IsZero() {
		return nil, apperrors.InvalidArgument("target date is required")
	}
	if percent < 0 || percent > 100 {
		return nil, apperrors.InvalidArgument("target percentage must be between 0 and 100")
	}

	record, attendanceMeta, err := s.Attendance(ctx)
	if err != nil {
		return nil, err
	}
	schedule, timetableMeta, err := s.Timetable(ctx)
	if err != nil {
		return nil, err
	}

	out := &Projection{
		Analysis: s.projector.Comprehensive(record, schedule, target),
		Meta: Meta{
			UpdatedAt: attendanceMeta.UpdatedAt,
			Stale:     attendanceMeta.Stale || timetableMeta.Stale,
		},
	}
	if percent > 0 && percent != projection.DefaultTargetPercentage && percent != projection.HighTargetPercentage {
		out.Custom = s.projector.Skippable(record, schedule, target, percent)
		out.CustomPercentage = percent
	}
	return out, nil
}

// NextClass is the state of the teaching day now.
type NextClass struct {
	timetable.NextClassInfo
	Tomorrow *timetable.ClassInfo `json:"tomorrow,omitempty"`
}

// NextClass reports the ongoing and upcoming periods in the service zone.
// Tomorrow's first class is included once today is over.
func (s *Service) NextClass(ctx context.Context) (*NextClass, error) {
	schedule, _, err := s.Timetable(ctx)
	if err != nil {
		return nil, err
	}
	out := &NextClass{NextClassInfo: s.aggregator.NextClass(schedule)}
	if out.ShowTomorrowSchedule {
		out.Tomorrow = s.aggregator.TomorrowFirstClass(schedule)
	}
	return out, nil
}

// ResultsReport is the per-subject internal marks breakdown.
type ResultsReport struct {
	Subjects  []results.Analysis `json:"subjects"`
	Overview  results.Overview   `json:"overview"`
	Semesters []results.Semester `json:"semesters,omitempty"`
	Meta
}

// Results analyzes the latest internal exams, folding in attendance marks
// when attendance is cached and end-semester grades when they are.
func (s *Service) Results(ctx context.Context) (*ResultsReport, error) {
	exams, meta, err := s.Exams(ctx)
	if err != nil {
		return nil, err
	}

	out := &ResultsReport{
		Subjects: results.Analyze(exams, s.optionalAttendance(ctx)),
		Overview: results.Summarize(exams),
		Meta:     meta,
	}
	semesters, _, err := s.Semesters(ctx)
	switch {
	case err == nil:
		out.Semesters = semesters
	case !apperrors.IsCode(err, apperrors.ErrCodeNotFound):
		slog.Warn("continuing without end-semester results", slog.String("error", err.Error()))
	}
	return out, nil
}

// Theme returns the saved theme, light when none is saved.
func (s *Service) Theme(ctx context.Context) string {
	entry := s.cache.GetTheme(ctx)
	if entry == nil {
		return ThemeLight
	}
	mode, err := cache.Decode[string](entry)
	if err != nil || (mode != ThemeLight && mode != ThemeDark) {
		return ThemeLight
	}
	return mode
}

// SetTheme saves the theme permanently.
func (s *Service) SetTheme(ctx context.Context, mode string) error {
	if mode != ThemeLight && mode != ThemeDark {
		return apperrors.InvalidArgument(fmt.Sprintf("theme must be %q or %q", ThemeLight, ThemeDark))
	}
	if !s.cache.SaveTheme(ctx, mode) {
		return apperrors.StorageFailure("failed to save theme", nil)
	}
	return nil
}
