package timetable

import (
	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/matcher"
)

// AttendanceClasses reports classes held so far per label, taken from the
// matched attendance subject's total hours.
type AttendanceClasses struct {
	Hours Counts `json:"hours"`

	// Unmatched labels are present in Hours with 0.
	Unmatched []string `json:"unmatched,omitempty"`
}

// ClassesFromAttendance maps every weekly label to an attendance code and
// reports that code's total hours. Labels without a code report 0 and are
// listed in Unmatched.
func ClassesFromAttendance(s *Schedule, record *attendance.Record, m *matcher.Matcher) AttendanceClasses {
	result := AttendanceClasses{Hours: make(Counts)}
	if s == nil || record == nil {
		return result
	}

	labels := WeeklyCount(s).Labels()
	mapping := m.Map(labels, record.Codes())
	for _, label := range labels {
		code, ok := mapping.Code(label)
		if !ok {
			result.Hours[label] = 0
			continue
		}
		subject, _ := record.Subject(code)
		result.Hours[label] = subject.TotalHours
	}
	result.Unmatched = mapping.Unmatched()
	return result
}
