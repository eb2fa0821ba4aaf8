package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars(t *testing.T) {
	for _, key := range []string{
		"ETLABPLUS_PORTAL_URL",
		"ETLABPLUS_AI_URL",
		"ETLABPLUS_TIMEZONE",
		"ETLABPLUS_SECRET",
		"ETLABPLUS_LOAD_PRESET",
		"ETLABPLUS_PORTAL_RPS",
	} {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"PortalBaseURL default", "https://etlabapp-backendv1.onrender.com", p.PortalBaseURL},
		{"AIBaseURL default", "https://etlab-plus-ai-api.onrender.com", p.AIBaseURL},
		{"Timezone default", "Asia/Kolkata", p.Timezone},
		{"LoadPreset default", "default", p.LoadPreset},
		{"SecretPassphrase default", "", p.SecretPassphrase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}
	assert.Equal(t, 2.0, p.RequestsPerSecond)
}

func TestProfileFromEnv(t *testing.T) {
	clearEnvVars(t)

	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
	}{
		{"ETLABPLUS_PORTAL_URL", "ETLABPLUS_PORTAL_URL", "http://localhost:8080", func(p *Profile) string { return p.PortalBaseURL }},
		{"ETLABPLUS_AI_URL", "ETLABPLUS_AI_URL", "http://localhost:9090", func(p *Profile) string { return p.AIBaseURL }},
		{"ETLABPLUS_TIMEZONE", "ETLABPLUS_TIMEZONE", "UTC", func(p *Profile) string { return p.Timezone }},
		{"ETLABPLUS_SECRET", "ETLABPLUS_SECRET", "hunter2", func(p *Profile) string { return p.SecretPassphrase }},
		{"ETLABPLUS_LOAD_PRESET", "ETLABPLUS_LOAD_PRESET", "fast", func(p *Profile) string { return p.LoadPreset }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.envValue)
			p := &Profile{}
			p.FromEnv()
			assert.Equal(t, tt.envValue, tt.field(p))
		})
	}
}

func TestProfileFromEnv_KeepsFlagValues(t *testing.T) {
	clearEnvVars(t)

	p := &Profile{PortalBaseURL: "http://flag.example", LoadPreset: "daily"}
	p.FromEnv()

	assert.Equal(t, "http://flag.example", p.PortalBaseURL)
	assert.Equal(t, "daily", p.LoadPreset)
}

func TestProfileFromEnv_InvalidRPS(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("ETLABPLUS_PORTAL_RPS", "not-a-number")

	p := &Profile{}
	p.FromEnv()
	assert.Equal(t, 2.0, p.RequestsPerSecond)

	t.Setenv("ETLABPLUS_PORTAL_RPS", "5.5")
	p.FromEnv()
	assert.Equal(t, 5.5, p.RequestsPerSecond)
}

func TestValidate(t *testing.T) {
	t.Run("SQLiteDSNDerived", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "weird", Data: dir, Driver: "sqlite"}
		require.NoError(t, p.Validate())

		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, filepath.Join(p.Data, "etlabplus_demo.db"), p.DSN)
	})

	t.Run("DataDirCreated", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")
		p := &Profile{Mode: "dev", Data: dir}
		require.NoError(t, p.Validate())

		assert.Equal(t, "sqlite", p.Driver)
		assert.DirExists(t, dir)
	})

	t.Run("MemorySkipsDataDir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "memory"}
		require.NoError(t, p.Validate())
		assert.Empty(t, p.DSN)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		p := &Profile{Mode: "prod", Data: t.TempDir(), Driver: "postgres"}
		assert.Error(t, p.Validate())
	})
}
