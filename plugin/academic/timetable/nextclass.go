package timetable

import "time"

// PeriodTiming is the wall-clock window of a period, in minutes since
// midnight.
type PeriodTiming struct {
	Period  int
	Start   int
	End     int
	Display string
}

func hm(h, m int) int { return h*60 + m }

// PeriodTimings lists the fixed bell schedule, index 0 is period 1.
var PeriodTimings = [PeriodsPerDay]PeriodTiming{
	{Period: 1, Start: hm(9, 0), End: hm(10, 0), Display: "9:00 - 10:00 AM"},
	{Period: 2, Start: hm(10, 0), End: hm(10, 45), Display: "10:00 - 10:45 AM"},
	{Period: 3, Start: hm(11, 0), End: hm(12, 0), Display: "11:00 - 12:00 PM"},
	{Period: 4, Start: hm(12, 0), End: hm(12, 45), Display: "12:00 - 12:45 PM"},
	{Period: 5, Start: hm(13, 30), End: hm(14, 30), Display: "1:30 - 2:30 PM"},
	{Period: 6, Start: hm(14, 30), End: hm(15, 30), Display: "2:30 - 3:30 PM"},
	{Period: 7, Start: hm(15, 45), End: hm(16, 20), Display: "3:45 - 4:20 PM"},
}

// FreePeriodLabel is shown for periods without a class.
const FreePeriodLabel = "Free Period"

// ClassInfo describes one period for display.
type ClassInfo struct {
	Period  int    `json:"period"`
	Subject string `json:"subject"`
	Teacher string `json:"teacher,omitempty"`
	Timing  string `json:"timing"`
	IsFree  bool   `json:"isFree"`
}

// NextClassInfo is the state of the teaching day at a moment.
type NextClassInfo struct {
	CurrentClass         *ClassInfo `json:"currentClass"`
	NextClass            *ClassInfo `json:"nextClass"`
	IsClassOngoing       bool       `json:"isClassOngoing"`
	ShowTomorrowSchedule bool       `json:"showTomorrowSchedule"`
	CurrentTime          string     `json:"currentTime"`
}

func classInfo(s *Schedule, day time.Weekday, period int) *ClassInfo {
	timing := PeriodTimings[period-1]
	info := &ClassInfo{Period: period, Subject: FreePeriodLabel, Timing: timing.Display, IsFree: true}

	slot := s.Slot(day, period)
	if slot == nil {
		return info
	}
	if slot.Name != "" {
		info.Subject = slot.Name
	}
	info.Teacher = slot.Teacher
	info.IsFree = slot.IsFree()
	return info
}

// NextClass finds the ongoing and the next period of the day at now.
//
// A period is ongoing from its start minute up to, not including, its end
// minute, and upcoming before its start. Saturdays and Sundays always point
// to tomorrow's schedule, as does a weekday after the last period.
func NextClass(s *Schedule, now time.Time) NextClassInfo {
	info := NextClassInfo{CurrentTime: now.Format("3:04 PM")}
	day := now.Weekday()
	if day == time.Saturday || day == time.Sunday {
		info.ShowTomorrowSchedule = true
		return info
	}

	minute := hm(now.Hour(), now.Minute())
	for _, timing := range PeriodTimings {
		if minute >= timing.Start && minute < timing.End {
			info.CurrentClass = classInfo(s, day, timing.Period)
			info.IsClassOngoing = true
			break
		}
	}
	for _, timing := range PeriodTimings {
		if minute < timing.Start {
			info.NextClass = classInfo(s, day, timing.Period)
			break
		}
	}
	info.ShowTomorrowSchedule = !info.IsClassOngoing && info.NextClass == nil
	return info
}

// TomorrowFirstClass returns tomorrow's first period with a class, or nil
// when tomorrow is a weekend day or has no classes.
func TomorrowFirstClass(s *Schedule, now time.Time) *ClassInfo {
	day := now.AddDate(0, 0, 1).Weekday()
	if day == time.Saturday || day == time.Sunday {
		return nil
	}
	for period := 1; period <= PeriodsPerDay; period++ {
		if !s.Slot(day, period).IsFree() {
			return classInfo(s, day, period)
		}
	}
	return nil
}
