package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// EnvelopeVersion is the layout version written by Set. Entries written
// before the tag existed decode as version 1.
const EnvelopeVersion = 1

// Storage is the durable key-value backend. Values are pre-serialized
// strings. store.Store satisfies it.
type Storage interface {
	GetItemValue(ctx context.Context, key string) (string, bool, error)
	SetItemValue(ctx context.Context, key, value string) error
	RemoveItemValue(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys []string) error
}

// Clock returns the current time.
type Clock func() time.Time

// Entry is a cached value as seen by one read.
type Entry struct {
	Key       string
	Data      json.RawMessage
	WrittenAt time.Time

	// MaxAge is nil for entries that never expire.
	MaxAge     *time.Duration
	Age        time.Duration
	IsExpired  bool
	IsFallback bool
}

// Status describes one known key for diagnostics.
type Status struct {
	Exists           bool   `json:"exists"`
	IsExpired        bool   `json:"isExpired,omitempty"`
	AgeMinutes       int64  `json:"ageMinutes,omitempty"`
	WrittenAtDisplay string `json:"timestamp,omitempty"`
}

type envelope struct {
	Version   int             `json:"version,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       *int64          `json:"ttl"`
}

// Manager stores JSON values with a write timestamp and an optional max age,
// and classifies reads as fresh, stale or absent.
//
// Manager never returns errors: storage and decode failures are logged and
// reported as false or absent.
type Manager struct {
	storage Storage
	now     Clock
	loc     *time.Location
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.now = clock
	}
}

// WithLocation sets the zone used for Status display strings.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// NewManager creates a Manager on top of storage.
func NewManager(storage Storage, opts ...Option) *Manager {
	m := &Manager{
		storage: storage,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set serializes value with the current time and maxAge, replacing any
// previous entry. A nil or non-positive maxAge stores a permanent entry.
func (m *Manager) Set(ctx context.Context, key string, value any, maxAge *time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	env := envelope{
		Version:   EnvelopeVersion,
		Data:      data,
		Timestamp: m.now().UnixMilli(),
	}
	if maxAge != nil && *maxAge > 0 {
		ttl := maxAge.Milliseconds()
		env.TTL = &ttl
	}

	raw, err := json.Marshal(env)
	if err != nil {
		slog.Error("cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	if err := m.storage.SetItemValue(ctx, key, string(raw)); err != nil {
		slog.Error("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	slog.Debug("cache saved", slog.String("key", key), slog.String("ttl", ttlLabel(maxAge)))
	return true
}

// Get returns the entry for key, or nil when absent.
//
// An expired entry read with ignoreExpiry=false is deleted from storage and
// reported absent. With ignoreExpiry=true it is returned with IsExpired set.
func (m *Manager) Get(ctx context.Context, key string, ignoreExpiry bool) *Entry {
	entry := m.read(ctx, key)
	if entry == nil {
		return nil
	}
	if entry.IsExpired && !ignoreExpiry {
		slog.Debug("cache expired", slog.String("key", key), slog.Duration("age", entry.Age))
		m.Remove(ctx, key)
		return nil
	}
	return entry
}

// GetWithFallback returns the fresh entry for key, or the stale one flagged
// with IsFallback. The stale entry stays in storage untouched; the next
// plain Get removes it.
func (m *Manager) GetWithFallback(ctx context.Context, key string) *Entry {
	entry := m.read(ctx, key)
	if entry == nil {
		return nil
	}
	if entry.IsExpired {
		slog.Info("serving stale cache", slog.String("key", key), slog.Duration("age", entry.Age))
		entry.IsFallback = true
	}
	return entry
}

// IsFresh reports whether key holds an unexpired entry.
func (m *Manager) IsFresh(ctx context.Context, key string) bool {
	entry := m.Get(ctx, key, false)
	return entry != nil && !entry.IsExpired
}

// Remove deletes key. Removing a missing key succeeds.
func (m *Manager) Remove(ctx context.Context, key string) bool {
	if err := m.storage.RemoveItemValue(ctx, key); err != nil {
		slog.Error("cache remove failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

// ClearAll removes every known dataset key in one call.
func (m *Manager) ClearAll(ctx context.Context) bool {
	if err := m.storage.MultiRemove(ctx, AllKeys()); err != nil {
		slog.Error("cache clear failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Status reports every known dataset by name, reading with ignoreExpiry so
// nothing is deleted.
func (m *Manager) Status(ctx context.Context) map[string]Status {
	status := make(map[string]Status, len(datasets))
	for _, ds := range datasets {
		entry := m.Get(ctx, ds.Key, true)
		if entry == nil {
			status[ds.Name] = Status{Exists: false}
			continue
		}
		status[ds.Name] = Status{
			Exists:           true,
			IsExpired:        entry.IsExpired,
			AgeMinutes:       int64(entry.Age / time.Minute),
			WrittenAtDisplay: entry.WrittenAt.In(m.loc).Format("2006-01-02 15:04:05"),
		}
	}
	return status
}

func (m *Manager) read(ctx context.Context, key string) *Entry {
	raw, ok, err := m.storage.GetItemValue(ctx, key)
	if err != nil {
		slog.Error("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		slog.Warn("cache entry unreadable", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}

	now := m.now()
	writtenAt := time.UnixMilli(env.Timestamp)
	ageMs := now.UnixMilli() - env.Timestamp
	entry := &Entry{
		Key:       key,
		Data:      env.Data,
		WrittenAt: writtenAt,
		Age:       time.Duration(ageMs) * time.Millisecond,
	}
	if env.TTL != nil && *env.TTL > 0 {
		maxAge := time.Duration(*env.TTL) * time.Millisecond
		entry.MaxAge = &maxAge
		entry.IsExpired = ageMs > *env.TTL
	}
	return entry
}

func decodeEnvelope(raw string) (*envelope, error) {
	env := &envelope{}
	if err := json.Unmarshal([]byte(raw), env); err != nil {
		return nil, errors.Wrap(err, "invalid envelope")
	}
	if env.Version == 0 {
		env.Version = 1
	}
	if env.Version > EnvelopeVersion {
		return nil, errors.Errorf("unsupported envelope version %d", env.Version)
	}
	return env, nil
}

// Decode unmarshals the entry payload into T.
func Decode[T any](entry *Entry) (T, error) {
	var v T
	if entry == nil {
		return v, errors.New("no cache entry")
	}
	if err := json.Unmarshal(entry.Data, &v); err != nil {
		return v, errors.Wrapf(err, "failed to decode %s", entry.Key)
	}
	return v, nil
}

func ttlLabel(maxAge *time.Duration) string {
	if maxAge == nil || *maxAge <= 0 {
		return "permanent"
	}
	return maxAge.String()
}
