// Package results analyzes sessional exam results together with attendance.
package results

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/hrygo/etlabplus/plugin/academic/attendance"
)

// ScaleMax is the weight of one sessional exam in the internal marks.
const ScaleMax = 12.5

// Exam is one sessional exam row. The portal sends numbers as strings.
type Exam struct {
	SubjectCode   string `json:"subjectCode"`
	SubjectName   string `json:"subjectName"`
	MarksObtained string `json:"marksObtained"`
	MaximumMarks  string `json:"maximumMarks"`
	Semester      string `json:"semester"`
	Exam          string `json:"exam"`
}

// Marks returns the obtained and maximum marks. ok is false when either does
// not parse or the maximum is not positive.
func (e Exam) Marks() (obtained, maximum float64, ok bool) {
	obtained, err := strconv.ParseFloat(strings.TrimSpace(e.MarksObtained), 64)
	if err != nil {
		return 0, 0, false
	}
	maximum, err = strconv.ParseFloat(strings.TrimSpace(e.MaximumMarks), 64)
	if err != nil || maximum <= 0 {
		return 0, 0, false
	}
	return obtained, maximum, true
}

// ParseExams decodes the results payload.
func ParseExams(data []byte) ([]Exam, error) {
	var exams []Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, errors.Wrap(err, "failed to decode results")
	}
	return exams, nil
}

// AttendanceMarks converts an attendance percentage to internal marks out of
// 5. Below 75% no marks are awarded and ok is false.
func AttendanceMarks(percentage float64) (marks int, ok bool) {
	switch {
	case percentage >= 85:
		return 5, true
	case percentage >= 80:
		return 4, true
	case percentage >= 75:
		return 3, true
	default:
		return 0, false
	}
}

// ToScale converts marks to the 12.5 scale.
func ToScale(obtained, maximum float64) float64 {
	if maximum <= 0 {
		return 0
	}
	return obtained / maximum * ScaleMax
}

// MatchAttendance finds the attendance subject for a result code: an exact
// key first, then the first subject in record order whose code shares a
// three character prefix or is equal once punctuation is stripped.
func MatchAttendance(code string, record *attendance.Record) (*attendance.Subject, bool) {
	if record == nil || code == "" {
		return nil, false
	}
	if s, ok := record.Subject(code); ok {
		return s, true
	}

	lower := strings.ToLower(code)
	for _, s := range record.Subjects {
		other := strings.ToLower(s.Code)
		if other == "" {
			continue
		}
		if strings.Contains(other, prefix(lower)) ||
			strings.Contains(lower, prefix(other)) ||
			alnum(other) == alnum(lower) {
			return s, true
		}
	}
	return nil, false
}

func prefix(s string) string {
	if len(s) > 3 {
		return s[:3]
	}
	return s
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Analysis is the internal-marks breakdown of one subject.
type Analysis struct {
	SubjectCode string  `json:"subjectCode"`
	SubjectName string  `json:"subjectName"`
	Exam        string  `json:"exam"`
	CAT1        float64 `json:"cat1"`
	CAT2        float64 `json:"cat2"`
	Assignment  float64 `json:"assignment"`

	// AttendanceMarks and AttendancePercentage are nil when no attendance
	// subject matched or the percentage is below 75.
	AttendanceMarks      *int     `json:"attendanceMarks"`
	AttendancePercentage *float64 `json:"attendancePercentage"`

	Total     float64 `json:"total"`
	Malformed bool    `json:"malformed,omitempty"`
}

// Analyze keeps the latest exam of every subject, in first-seen order, and
// combines its marks with attendance marks. CAT2 and Assignment are left
// at 0 for the caller to fill in.
func Analyze(exams []Exam, record *attendance.Record) []Analysis {
	latest := make(map[string]Exam)
	var order []string
	for _, e := range exams {
		prev, seen := latest[e.SubjectCode]
		if !seen {
			order = append(order, e.SubjectCode)
		}
		if !seen || prev.Exam < e.Exam {
			latest[e.SubjectCode] = e
		}
	}

	analyses := make([]Analysis, 0, len(order))
	for _, code := range order {
		e := latest[code]
		a := Analysis{SubjectCode: e.SubjectCode, SubjectName: e.SubjectName, Exam: e.Exam}

		if obtained, maximum, ok := e.Marks(); ok {
			a.CAT1 = ToScale(obtained, maximum)
		} else {
			a.Malformed = true
		}

		if s, ok := MatchAttendance(code, record); ok {
			pct := s.Percentage
			a.AttendancePercentage = &pct
			if marks, ok := AttendanceMarks(pct); ok {
				a.AttendanceMarks = &marks
			}
		}
		a.Total = a.Sum()
		analyses = append(analyses, a)
	}
	return analyses
}

// Sum adds every component, counting missing attendance marks as 0.
func (a Analysis) Sum() float64 {
	total := a.CAT1 + a.CAT2 + a.Assignment
	if a.AttendanceMarks != nil {
		total += float64(*a.AttendanceMarks)
	}
	return total
}

// Overview summarizes every exam row.
type Overview struct {
	ExamCount       int     `json:"examCount"`
	MarksObtained   float64 `json:"marksObtained"`
	MaximumMarks    float64 `json:"maximumMarks"`
	Percentage      float64 `json:"percentage"`
	Performance     string  `json:"performance"`
	WeakestSubjects []Exam  `json:"weakestSubjects"`
}

// Performance bands of the overall percentage.
const (
	PerformanceExcellent = "Excellent"
	PerformanceGood      = "Good"
	PerformanceAverage   = "Average"
	PerformanceLow       = "Needs Improvement"
)

const weakestCount = 3

// Summarize totals every exam row and picks the three weakest results.
// Rows whose marks do not parse are left out.
func Summarize(exams []Exam) Overview {
	type scored struct {
		exam Exam
		pct  float64
	}

	o := Overview{ExamCount: len(exams)}
	var rows []scored
	for _, e := range exams {
		obtained, maximum, ok := e.Marks()
		if !ok {
			continue
		}
		o.MarksObtained += obtained
		o.MaximumMarks += maximum
		rows = append(rows, scored{exam: e, pct: obtained / maximum * 100})
	}
	if o.MaximumMarks > 0 {
		o.Percentage = math.Round(o.MarksObtained/o.MaximumMarks*1000) / 10
	}
	o.Performance = performance(o.Percentage)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].pct < rows[j].pct })
	for i := 0; i < len(rows) && i < weakestCount; i++ {
		o.WeakestSubjects = append(o.WeakestSubjects, rows[i].exam)
	}
	return o
}

func performance(pct float64) string {
	switch {
	case pct >= 85:
		return PerformanceExcellent
	case pct >= 75:
		return PerformanceGood
	case pct >= 65:
		return PerformanceAverage
	default:
		return PerformanceLow
	}
}
