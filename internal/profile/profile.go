package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the client and its local API server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the local API server
	Addr string
	// Port is the binding port for the local API server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where etlabplus stores its cache and secrets
	DSN string
	// Driver is the storage driver (sqlite, postgres or memory)
	Driver string
	// Version is the current version of the client
	Version string

	// Portal configuration
	PortalBaseURL     string  // ETLABPLUS_PORTAL_URL (default: https://etlabapp-backendv1.onrender.com)
	AIBaseURL         string  // ETLABPLUS_AI_URL (default: https://etlab-plus-ai-api.onrender.com)
	RequestsPerSecond float64 // ETLABPLUS_PORTAL_RPS (default: 2)

	// Timezone is the IANA zone used for date arithmetic (default: Asia/Kolkata)
	Timezone string
	// SecretPassphrase derives the key that encrypts stored credentials.
	SecretPassphrase string
	// LoadPreset selects the dataset load order (default, academic, daily, fast).
	LoadPreset string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from ETLABPLUS_* environment variables.
// Fields already set by flags are kept when the variable is empty.
func (p *Profile) FromEnv() {
	p.PortalBaseURL = getEnvOrDefault("ETLABPLUS_PORTAL_URL", orDefault(p.PortalBaseURL, "https://etlabapp-backendv1.onrender.com"))
	p.AIBaseURL = getEnvOrDefault("ETLABPLUS_AI_URL", orDefault(p.AIBaseURL, "https://etlab-plus-ai-api.onrender.com"))
	p.Timezone = getEnvOrDefault("ETLABPLUS_TIMEZONE", orDefault(p.Timezone, "Asia/Kolkata"))
	p.SecretPassphrase = getEnvOrDefault("ETLABPLUS_SECRET", p.SecretPassphrase)
	p.LoadPreset = getEnvOrDefault("ETLABPLUS_LOAD_PRESET", orDefault(p.LoadPreset, "default"))

	p.RequestsPerSecond = 2
	if raw := os.Getenv("ETLABPLUS_PORTAL_RPS"); raw != "" {
		if rps, err := strconv.ParseFloat(raw, 64); err == nil && rps > 0 {
			p.RequestsPerSecond = rps
		} else {
			slog.Warn("ignoring invalid ETLABPLUS_PORTAL_RPS", slog.String("value", raw))
		}
	}
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "memory" {
		return nil
	}

	if p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("APPDATA"), "etlabplus")
		} else if home, err := os.UserHomeDir(); err == nil {
			p.Data = filepath.Join(home, ".etlabplus")
		} else {
			p.Data = "."
		}
	}
	if _, err := os.Stat(p.Data); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Data, 0770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("etlabplus_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	return nil
}
