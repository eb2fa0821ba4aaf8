package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/etlabplus/internal/profile"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:           "etlabplus",
		Short:         `A terminal client for the college academic portal: attendance, timetable, results and projections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// jsonOutput prints raw JSON instead of tables.
	jsonOutput bool
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "127.0.0.1")
	viper.SetDefault("port", 8087)
	viper.SetDefault("preset", "default")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of client, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "storage driver (sqlite, postgres or memory)")
	rootCmd.PersistentFlags().String("dsn", "", "storage data source name")
	rootCmd.PersistentFlags().String("portal-url", "", "portal API base URL")
	rootCmd.PersistentFlags().String("ai-url", "", "AI proxy base URL")
	rootCmd.PersistentFlags().String("timezone", "", "IANA timezone for dates")
	rootCmd.PersistentFlags().String("preset", "default", "dataset load order (default, academic, daily, fast)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON")

	for _, name := range []string{"mode", "data", "driver", "dsn", "portal-url", "ai-url", "timezone", "preset"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("etlabplus")
	viper.AutomaticEnv()
	for key, env := range map[string]string{
		"portal-url": "ETLABPLUS_PORTAL_URL",
		"ai-url":     "ETLABPLUS_AI_URL",
		"preset":     "ETLABPLUS_LOAD_PRESET",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newAttendanceCmd(),
		newTimetableCmd(),
		newProjectCmd(),
		newNextCmd(),
		newResultsCmd(),
		newAskCmd(),
		newThemeCmd(),
		newServeCmd(),
	)
}

// loadProfile builds the profile from flags, ETLABPLUS_* variables and an
// optional .env file in the working directory.
func loadProfile() (*profile.Profile, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	p := &profile.Profile{
		Mode:          viper.GetString("mode"),
		Addr:          viper.GetString("addr"),
		Port:          viper.GetInt("port"),
		Data:          viper.GetString("data"),
		Driver:        viper.GetString("driver"),
		DSN:           viper.GetString("dsn"),
		Version:       version,
		PortalBaseURL: viper.GetString("portal-url"),
		AIBaseURL:     viper.GetString("ai-url"),
		Timezone:      viper.GetString("timezone"),
		LoadPreset:    viper.GetString("preset"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}
