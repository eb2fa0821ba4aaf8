package loader

import (
	"sort"
	"time"

	"github.com/hrygo/etlabplus/plugin/portal"
)

// Dataset names. They double as cache dataset names.
const (
	DatasetAttendance    = "attendance"
	DatasetTimetable     = "timetable"
	DatasetResults       = "results"
	DatasetEndSemResults = "endSemResults"
)

// Load order presets.
const (
	PresetDefault  = "default"
	PresetAcademic = "academic"
	PresetDaily    = "daily"
	PresetFast     = "fast"
)

// Endpoint describes how one dataset is fetched.
type Endpoint struct {
	Name        string
	DisplayName string
	Path        string
	// Priority orders the default preset, highest first.
	Priority int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RetryCount is the number of attempts after the first.
	RetryCount int
}

// DefaultEndpoints is the dataset table. The results endpoint is slow and
// gets a long timeout and a single retry.
var DefaultEndpoints = []Endpoint{
	{Name: DatasetAttendance, DisplayName: "Attendance Data", Path: portal.EndpointAttendance, Priority: 4, Timeout: 10 * time.Second, RetryCount: 2},
	{Name: DatasetTimetable, DisplayName: "Timetable Data", Path: portal.EndpointTimetable, Priority: 3, Timeout: 10 * time.Second, RetryCount: 2},
	{Name: DatasetResults, DisplayName: "Results Data", Path: portal.EndpointResults, Priority: 1, Timeout: 35 * time.Second, RetryCount: 1},
	{Name: DatasetEndSemResults, DisplayName: "End Semester Results", Path: portal.EndpointEndSemResults, Priority: 2, Timeout: 15 * time.Second, RetryCount: 2},
}

var presets = map[string][]string{
	PresetAcademic: {DatasetResults, DatasetEndSemResults, DatasetAttendance, DatasetTimetable},
	PresetDaily:    {DatasetTimetable, DatasetAttendance, DatasetResults, DatasetEndSemResults},
	PresetFast:     {DatasetAttendance, DatasetTimetable},
}

// Presets lists the known preset names.
func Presets() []string {
	return []string{PresetDefault, PresetAcademic, PresetDaily, PresetFast}
}

// Order returns the endpoints of a preset. Unknown presets fall back to
// the default order, by priority.
func Order(endpoints []Endpoint, preset string) []Endpoint {
	names, ok := presets[preset]
	if !ok {
		ordered := append([]Endpoint(nil), endpoints...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Priority > ordered[j].Priority
		})
		return ordered
	}

	ordered := make([]Endpoint, 0, len(names))
	for _, name := range names {
		if ep, ok := find(endpoints, name); ok {
			ordered = append(ordered, ep)
		}
	}
	return ordered
}

func find(endpoints []Endpoint, name string) (Endpoint, bool) {
	for _, ep := range endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}
