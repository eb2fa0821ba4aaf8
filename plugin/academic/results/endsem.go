package results

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Text accepts a JSON string or number. The end-semester payload is not
// consistent about which one it sends.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Errorf("expected string or number, got %s", data)
	}
	*t = Text(n.String())
	return nil
}

// Course is one graded course of an end-semester exam.
type Course struct {
	Code       Text `json:"Course Code"`
	Name       Text `json:"Course Name"`
	Slot       Text `json:"Slot"`
	Credit     Text `json:"Credit"`
	Grade      Text `json:"Grade"`
	PassStatus Text `json:"Pass Status"`
}

// Semester is one end-semester exam with its grades.
type Semester struct {
	ExamTitle Text `json:"exam_title"`
	ExamType  Text `json:"exam_type"`
	Semester  Text `json:"semester"`
	Year      Text `json:"year"`
	Grades    struct {
		Results []Course `json:"results"`
	} `json:"grades"`
}

// ParseSemesters decodes the end-semester payload and drops semesters with
// no graded courses.
func ParseSemesters(data []byte) ([]Semester, error) {
	var semesters []Semester
	if err := json.Unmarshal(data, &semesters); err != nil {
		return nil, errors.Wrap(err, "failed to decode end-semester results")
	}
	return NonEmpty(semesters), nil
}

// NonEmpty returns the semesters that have at least one course.
func NonEmpty(semesters []Semester) []Semester {
	kept := make([]Semester, 0, len(semesters))
	for _, s := range semesters {
		if len(s.Grades.Results) > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

// Grade bands.
const (
	BandTop     = "top"
	BandGood    = "good"
	BandAverage = "average"
	BandLow     = "low"
	BandPass    = "pass"
	BandUnknown = "unknown"
)

// GradeBand groups a letter grade.
func GradeBand(grade string) string {
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "S", "A+", "A":
		return BandTop
	case "B+", "B", "B-":
		return BandGood
	case "C+", "C", "C-":
		return BandAverage
	case "D+", "D", "F":
		return BandLow
	case "P":
		return BandPass
	default:
		return BandUnknown
	}
}
