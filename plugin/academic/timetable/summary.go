package timetable

import (
	"fmt"
	"math"
	"sort"
)

// Summary source values.
const (
	SourceAttendance = "attendance"
	SourceProjection = "projection"
)

// Summary describes the weekly load and, when possible, classes held so far.
type Summary struct {
	TotalSubjects            int     `json:"totalSubjects"`
	TotalWeeklyClasses       int     `json:"totalWeeklyClasses"`
	WeeklyClassesPerSubject  Counts  `json:"weeklyClassesPerSubject"`
	AverageClassesPerSubject float64 `json:"averageClassesPerSubject"`

	// ClassesUpToDate comes from attendance when available, otherwise from
	// the date projection.
	ClassesUpToDate      Counts   `json:"classesUpToDate,omitempty"`
	TotalClassesUpToDate int      `json:"totalClassesUpToDate,omitempty"`
	Source               string   `json:"source,omitempty"`
	Unmatched            []string `json:"unmatched,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Line is one formatted count.
type Line struct {
	Subject     string `json:"subject"`
	Count       int    `json:"count"`
	DisplayText string `json:"displayText"`
}

// Count kinds for FormatCounts.
const (
	KindWeekly = "weekly"
	KindTotal  = "total"
)

// FormatCounts renders counts sorted by count descending, then label.
func FormatCounts(counts Counts, kind string) []Line {
	unit := "total classes"
	if kind == KindWeekly {
		unit = "classes per week"
	}

	lines := make([]Line, 0, len(counts))
	for subject, n := range counts {
		lines = append(lines, Line{
			Subject:     subject,
			Count:       n,
			DisplayText: fmt.Sprintf("%s: %d %s", subject, n, unit),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Count != lines[j].Count {
			return lines[i].Count > lines[j].Count
		}
		return lines[i].Subject < lines[j].Subject
	})
	return lines
}
