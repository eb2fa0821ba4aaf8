package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/timetable"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/timezone"
)

// AttendanceSubject is one subject row of the attendance response.
type AttendanceSubject struct {
	Code         string   `json:"code"`
	PresentHours int      `json:"presentHours"`
	TotalHours   int      `json:"totalHours"`
	Percentage   float64  `json:"percentage"`
	Errors       []string `json:"errors,omitempty"`
}

func newAttendanceSubject(subject *attendance.Subject) AttendanceSubject {
	row := AttendanceSubject{
		Code:         subject.Code,
		PresentHours: subject.PresentHours,
		TotalHours:   subject.TotalHours,
		Percentage:   subject.Percentage,
	}
	for _, perr := range subject.Errors {
		row.Errors = append(row.Errors, perr.Error())
	}
	return row
}

// AttendanceResponse is the parsed attendance record.
type AttendanceResponse struct {
	Subjects []AttendanceSubject `json:"subjects"`

	// Student holds the record-level fields such as name and totals.
	Student map[string]json.RawMessage `json:"student,omitempty"`
	academic.Meta
}

// GetAttendance returns the cached attendance record.
// GET /api/v1/attendance
func (s *APIV1Service) GetAttendance(c echo.Context) error {
	record, meta, err := s.Academic.Attendance(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	resp := AttendanceResponse{
		Subjects: make([]AttendanceSubject, 0, len(record.Subjects)),
		Student:  record.Meta,
		Meta:     meta,
	}
	for _, subject := range record.Subjects {
		resp.Subjects = append(resp.Subjects, newAttendanceSubject(subject))
	}
	return c.JSON(http.StatusOK, resp)
}

// TimetableResponse is the normalized weekly schedule.
type TimetableResponse struct {
	Timetable *timetable.Schedule `json:"timetable"`
	academic.Meta
}

// GetTimetable returns the cached timetable with normalized period keys.
// GET /api/v1/timetable
func (s *APIV1Service) GetTimetable(c echo.Context) error {
	schedule, meta, err := s.Academic.Timetable(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, TimetableResponse{Timetable: schedule, Meta: meta})
}

// GetTimetableSummary returns weekly counts and classes held so far.
// GET /api/v1/timetable/summary?target=YYYY-MM-DD
func (s *APIV1Service) GetTimetableSummary(c echo.Context) error {
	var target *time.Time
	if raw := c.QueryParam("target"); raw != "" {
		t, err := s.parseDate(raw)
		if err != nil {
			return respondError(c, err)
		}
		target = &t
	}

	summary, err := s.Academic.TimetableSummary(c.Request().Context(), target)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// GetAnalysis returns the attendance projection up to a target date.
// GET /api/v1/analysis?target=YYYY-MM-DD&percent=N
func (s *APIV1Service) GetAnalysis(c echo.Context) error {
	raw := c.QueryParam("target")
	if raw == "" {
		return respondError(c, apperrors.InvalidArgument("target date is required"))
	}
	target, err := s.parseDate(raw)
	if err != nil {
		return respondError(c, err)
	}

	var percent float64
	if rawPercent := c.QueryParam("percent"); rawPercent != "" {
		percent, err = strconv.ParseFloat(rawPercent, 64)
		if err != nil {
			return respondError(c, apperrors.InvalidArgument("percent must be a number"))
		}
	}

	analysis, err := s.Academic.Project(c.Request().Context(), target, percent)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, analysis)
}

// GetNextClass returns the ongoing and upcoming period.
// GET /api/v1/next-class
func (s *APIV1Service) GetNextClass(c echo.Context) error {
	next, err := s.Academic.NextClass(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, next)
}

// GetResultsAnalysis returns the internal marks breakdown.
// GET /api/v1/results/analysis
func (s *APIV1Service) GetResultsAnalysis(c echo.Context) error {
	report, err := s.Academic.Results(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *APIV1Service) parseDate(raw string) (time.Time, error) {
	t, err := timezone.ParseDate(raw, s.Location)
	if err != nil {
		return time.Time{}, apperrors.InvalidArgument("dates must look like " + timezone.DateLayout)
	}
	return t, nil
}
