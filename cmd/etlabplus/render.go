package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/projection"
	"github.com/hrygo/etlabplus/plugin/academic/results"
	"github.com/hrygo/etlabplus/plugin/academic/timetable"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/store/cache"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// staleNote is printed under any table built from expired data.
func staleNote(w io.Writer, meta academic.Meta) {
	if meta.Stale {
		fmt.Fprintf(w, "\nData is out of date (last synced %s). Run etlabplus sync.\n", meta.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func renderReport(w io.Writer, report *loader.Report) {
	if report == nil {
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DATASET\tSTATUS\tTIME\tERROR")
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Name, status, res.Duration.Round(time.Millisecond), res.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d datasets loaded in %s\n",
		len(report.Results)-report.Failed(), len(report.Results), report.Duration.Round(time.Millisecond))
}

func renderCacheStatus(w io.Writer, status map[string]cache.Status) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATASET\tCACHED\tEXPIRED\tAGE\tUPDATED")
	for _, name := range sortedKeys(status) {
		st := status[name]
		if !st.Exists {
			fmt.Fprintf(tw, "%s\tno\t-\t-\t-\n", name)
			continue
		}
		fmt.Fprintf(tw, "%s\tyes\t%s\t%dm\t%s\n", name, yesNo(st.IsExpired), st.AgeMinutes, st.WrittenAtDisplay)
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderAttendance(w io.Writer, record *attendance.Record, meta academic.Meta) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SUBJECT\tPRESENT\tTOTAL\tPERCENT")
	for _, sub := range record.Subjects {
		if sub.Malformed() {
			fmt.Fprintf(tw, "%s\t?\t?\t?\n", sub.Code)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\n", sub.Code, sub.PresentHours, sub.TotalHours, sub.Percentage)
	}
	tw.Flush()
	staleNote(w, meta)
}

func renderWeek(w io.Writer, schedule *timetable.Schedule, meta academic.Meta) {
	tw := newTable(w)
	fmt.Fprint(tw, "DAY")
	for period := 1; period <= timetable.PeriodsPerDay; period++ {
		fmt.Fprintf(tw, "\tP%d", period)
	}
	fmt.Fprintln(tw)
	for day := time.Monday; day <= time.Saturday; day++ {
		fmt.Fprint(tw, timetable.DayName(day))
		for period := 1; period <= timetable.PeriodsPerDay; period++ {
			name := "-"
			if slot := schedule.Slot(day, period); slot != nil && slot.Name != "" {
				name = slot.Name
			}
			fmt.Fprintf(tw, "\t%s", name)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	staleNote(w, meta)
}

func renderSummary(w io.Writer, summary *academic.TimetableSummary) {
	fmt.Fprintf(w, "%d subjects, %d classes a week, %.2f per subject\n\n",
		summary.TotalSubjects, summary.TotalWeeklyClasses, summary.AverageClassesPerSubject)
	for _, line := range summary.Weekly {
		fmt.Fprintln(w, line.DisplayText)
	}
	if len(summary.UpToDate) > 0 {
		fmt.Fprintf(w, "\nClasses held so far (%d, from %s):\n", summary.TotalClassesUpToDate, summary.Source)
		for _, line := range summary.UpToDate {
			fmt.Fprintln(w, line.DisplayText)
		}
	}
	staleNote(w, summary.Meta)
}

func renderProjection(w io.Writer, p *academic.Projection) {
	fmt.Fprintf(w, "Projection to %s\n\n", p.TargetDate)
	tw := newTable(w)
	header := "SUBJECT\tNOW\tEXTRA\tIF ALL ATTENDED\tSKIP @75\tSKIP @85"
	if p.Custom != nil {
		header += "\tSKIP @" + strconv.FormatFloat(p.CustomPercentage, 'f', -1, 64)
	}
	fmt.Fprintln(tw, header)
	for _, code := range sortedKeys(p.PerfectAttendance) {
		perfect := p.PerfectAttendance[code]
		fmt.Fprintf(tw, "%s\t%.2f%%\t%d\t%.2f%%\t%s\t%s", code, perfect.CurrentPercentage, perfect.AdditionalClasses,
			perfect.ProjectedPercentage, skipCell(p.Skip75, code), skipCell(p.Skip85, code))
		if p.Custom != nil {
			fmt.Fprintf(tw, "\t%s", skipCell(p.Custom, code))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	staleNote(w, p.Meta)
}

func skipCell(skips map[string]projection.Skip, code string) string {
	skip, ok := skips[code]
	if !ok {
		return "-"
	}
	if !skip.CanMaintainTarget {
		return "unreachable"
	}
	return strconv.Itoa(skip.CanSkip)
}

func renderNextClass(w io.Writer, next *academic.NextClass) {
	switch {
	case next.IsClassOngoing && next.CurrentClass != nil:
		fmt.Fprintf(w, "Now: %s\n", describeClass(next.CurrentClass))
	case next.CurrentClass == nil && next.NextClass == nil && !next.ShowTomorrowSchedule:
		fmt.Fprintln(w, "No classes today")
	}
	if next.NextClass != nil {
		fmt.Fprintf(w, "Next: %s\n", describeClass(next.NextClass))
	}
	if next.ShowTomorrowSchedule {
		if next.Tomorrow != nil {
			fmt.Fprintf(w, "Tomorrow: %s\n", describeClass(next.Tomorrow))
		} else {
			fmt.Fprintln(w, "No classes tomorrow")
		}
	}
}

func describeClass(c *timetable.ClassInfo) string {
	text := fmt.Sprintf("period %d, %s (%s)", c.Period, c.Subject, c.Timing)
	if c.Teacher != "" {
		text += " with " + c.Teacher
	}
	return text
}

func renderResults(w io.Writer, report *academic.ResultsReport) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SUBJECT\tEXAM\tCAT1\tATTENDANCE\tTOTAL")
	for _, a := range report.Subjects {
		marks := "-"
		if a.AttendanceMarks != nil {
			marks = strconv.Itoa(*a.AttendanceMarks)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%.2f\n", a.SubjectCode, a.Exam, a.CAT1, marks, a.Total)
	}
	tw.Flush()

	o := report.Overview
	fmt.Fprintf(w, "\n%d exams, %.2f%% overall (%s)\n", o.ExamCount, o.Percentage, o.Performance)
	if len(o.WeakestSubjects) > 0 {
		fmt.Fprint(w, "Needs attention:")
		for _, exam := range o.WeakestSubjects {
			fmt.Fprintf(w, " %s", exam.SubjectCode)
		}
		fmt.Fprintln(w)
	}

	for _, sem := range report.Semesters {
		fmt.Fprintf(w, "\n%s\n", semesterTitle(sem))
		tw := newTable(w)
		for _, course := range sem.Grades.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", course.Code, course.Name, course.Grade, results.GradeBand(string(course.Grade)))
		}
		tw.Flush()
	}
	staleNote(w, report.Meta)
}

func semesterTitle(sem results.Semester) string {
	if sem.ExamTitle != "" {
		return string(sem.ExamTitle)
	}
	return fmt.Sprintf("Semester %s %s", sem.Semester, sem.Year)
}
