package cache

import (
	"context"
	"log/slog"
	"time"
)

// Dataset keys.
const (
	KeyTheme         = "@etlabplus_theme_mode"
	KeyTimetable     = "@etlabplus_timetable"
	KeyAttendance    = "@etlabplus_attendance"
	KeyResults       = "@etlabplus_results"
	KeyEndSemResults = "@etlabplus_end_sem_results"
	KeyProfile       = "@etlabplus_profile"
	KeyAIChat        = "@etlabplus_ai_chat"
)

// Dataset max ages. The theme never expires.
const (
	TTLAttendance    = time.Hour
	TTLResults       = 24 * time.Hour
	TTLEndSemResults = 24 * time.Hour
	TTLTimetable     = 7 * 24 * time.Hour
	TTLProfile       = 12 * time.Hour
	TTLAIChat        = 7 * 24 * time.Hour
)

type dataset struct {
	Name string
	Key  string
	TTL  *time.Duration
}

func ttl(d time.Duration) *time.Duration {
	return &d
}

var datasets = []dataset{
	{Name: "theme", Key: KeyTheme},
	{Name: "timetable", Key: KeyTimetable, TTL: ttl(TTLTimetable)},
	{Name: "attendance", Key: KeyAttendance, TTL: ttl(TTLAttendance)},
	{Name: "results", Key: KeyResults, TTL: ttl(TTLResults)},
	{Name: "endSemResults", Key: KeyEndSemResults, TTL: ttl(TTLEndSemResults)},
	{Name: "profile", Key: KeyProfile, TTL: ttl(TTLProfile)},
	{Name: "aiChat", Key: KeyAIChat, TTL: ttl(TTLAIChat)},
}

// AllKeys returns every dataset key in a stable order.
func AllKeys() []string {
	keys := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		keys = append(keys, ds.Key)
	}
	return keys
}

// KeyFor returns the storage key for a dataset name such as "attendance".
func KeyFor(name string) (string, bool) {
	for _, ds := range datasets {
		if ds.Name == name {
			return ds.Key, true
		}
	}
	return "", false
}

// TTLFor returns the max age of a dataset key, nil for permanent keys.
func TTLFor(key string) *time.Duration {
	for _, ds := range datasets {
		if ds.Key == key {
			return ds.TTL
		}
	}
	return nil
}

// SaveTheme stores the theme mode permanently.
func (m *Manager) SaveTheme(ctx context.Context, mode string) bool {
	return m.Set(ctx, KeyTheme, mode, nil)
}

// SaveTimetable stores the timetable payload for TTLTimetable.
func (m *Manager) SaveTimetable(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyTimetable, data, TTLFor(KeyTimetable))
}

// SaveAttendance stores the attendance payload for TTLAttendance.
func (m *Manager) SaveAttendance(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyAttendance, data, TTLFor(KeyAttendance))
}

// SaveResults stores the internal results payload for TTLResults.
func (m *Manager) SaveResults(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyResults, data, TTLFor(KeyResults))
}

// SaveEndSemResults stores the end-semester payload for TTLEndSemResults.
func (m *Manager) SaveEndSemResults(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyEndSemResults, data, TTLFor(KeyEndSemResults))
}

// SaveProfile stores the student profile for TTLProfile.
func (m *Manager) SaveProfile(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyProfile, data, TTLFor(KeyProfile))
}

// SaveAIChatHistory stores the assistant conversation for TTLAIChat.
func (m *Manager) SaveAIChatHistory(ctx context.Context, data any) bool {
	return m.Set(ctx, KeyAIChat, data, TTLFor(KeyAIChat))
}

// SaveDataset stores a portal dataset by name through its typed helper.
// Unknown names are logged and not stored.
func (m *Manager) SaveDataset(ctx context.Context, name string, data any) bool {
	switch name {
	case "timetable":
		return m.SaveTimetable(ctx, data)
	case "attendance":
		return m.SaveAttendance(ctx, data)
	case "results":
		return m.SaveResults(ctx, data)
	case "endSemResults":
		return m.SaveEndSemResults(ctx, data)
	case "profile":
		return m.SaveProfile(ctx, data)
	default:
		slog.Warn("refusing to cache unknown dataset", slog.String("dataset", name))
		return false
	}
}

// GetTheme is a plain read; the theme never goes stale.
func (m *Manager) GetTheme(ctx context.Context) *Entry {
	return m.Get(ctx, KeyTheme, false)
}

// GetTimetable reads the timetable, falling back to a stale copy.
func (m *Manager) GetTimetable(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyTimetable)
}

// GetAttendance reads attendance, falling back to a stale copy.
func (m *Manager) GetAttendance(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyAttendance)
}

// GetResults reads internal results, falling back to a stale copy.
func (m *Manager) GetResults(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyResults)
}

// GetEndSemResults reads end-semester results, falling back to a stale copy.
func (m *Manager) GetEndSemResults(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyEndSemResults)
}

// GetProfile reads the profile, falling back to a stale copy.
func (m *Manager) GetProfile(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyProfile)
}

// GetAIChatHistory reads the conversation, falling back to a stale copy.
func (m *Manager) GetAIChatHistory(ctx context.Context) *Entry {
	return m.GetWithFallback(ctx, KeyAIChat)
}
