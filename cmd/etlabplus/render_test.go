package main

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/plugin/academic/attendance"
	"github.com/hrygo/etlabplus/plugin/academic/projection"
	"github.com/hrygo/etlabplus/plugin/academic/timetable"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/service/loader"
	"github.com/hrygo/etlabplus/store/cache"
)

func TestDescribe(t *testing.T) {
	err := fmt.Errorf("sync: %w", apperrors.Unauthorized("not signed in"))
	assert.Equal(t, "not signed in (UNAUTHORIZED)", describe(err))
	assert.Equal(t, "boom", describe(fmt.Errorf("boom")))
}

func TestRenderReport(t *testing.T) {
	report := &loader.Report{
		Results: []loader.Result{
			{Name: "attendance", Duration: 120 * time.Millisecond},
			{Name: "results", Err: apperrors.NotFound("gone"), Error: "gone"},
		},
		Duration: time.Second,
	}
	var buf bytes.Buffer
	renderReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "attendance")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1 of 2 datasets loaded in 1s")
}

func TestRenderCacheStatus(t *testing.T) {
	var buf bytes.Buffer
	renderCacheStatus(&buf, map[string]cache.Status{
		"timetable":  {Exists: true, AgeMinutes: 5, WrittenAtDisplay: "10:00"},
		"attendance": {},
	})

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("attendance")), bytes.Index(buf.Bytes(), []byte("timetable")))
	assert.Contains(t, out, "5m")
}

func TestRenderAttendance(t *testing.T) {
	record, err := attendance.Parse([]byte(`{"CS1":{"present_hours":"30","total_hours":"40","attendance_percentage":"75"}}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	renderAttendance(&buf, record, academic.Meta{Stale: true, UpdatedAt: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)})

	out := buf.String()
	assert.Contains(t, out, "CS1")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "last synced 2025-01-06 09:00")
}

func TestRenderWeek(t *testing.T) {
	schedule := timetable.NewSchedule().Class(time.Monday, 1, "CS1")

	var buf bytes.Buffer
	renderWeek(&buf, schedule, academic.Meta{})

	out := buf.String()
	assert.Contains(t, out, "monday")
	assert.Contains(t, out, "CS1")
	assert.NotContains(t, out, "out of date")
}

func TestSkipCell(t *testing.T) {
	skips := map[string]projection.Skip{
		"CS1": {CanSkip: 3, CanMaintainTarget: true},
		"CS2": {},
	}
	assert.Equal(t, "3", skipCell(skips, "CS1"))
	assert.Equal(t, "unreachable", skipCell(skips, "CS2"))
	assert.Equal(t, "-", skipCell(skips, "CS3"))
}

func TestRenderNextClass(t *testing.T) {
	class := &timetable.ClassInfo{Period: 2, Subject: "CS1", Teacher: "Dr. Rao", Timing: "10:00 - 10:50"}

	var buf bytes.Buffer
	renderNextClass(&buf, &academic.NextClass{NextClassInfo: timetable.NextClassInfo{NextClass: class}})
	assert.Equal(t, "Next: period 2, CS1 (10:00 - 10:50) with Dr. Rao\n", buf.String())

	buf.Reset()
	renderNextClass(&buf, &academic.NextClass{NextClassInfo: timetable.NextClassInfo{ShowTomorrowSchedule: true}})
	assert.Equal(t, "No classes tomorrow\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
