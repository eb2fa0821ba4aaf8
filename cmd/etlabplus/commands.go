package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/server/service/academic"
	"github.com/hrygo/etlabplus/server/timezone"
)

// withApp runs fn with a wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func newLoginCmd() *cobra.Command {
	var (
		username string
		password string
		noSync   bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the portal and load every dataset",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				password = os.Getenv("ETLABPLUS_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return apperrors.InvalidArgument("password is required")
				}
				password = strings.TrimSpace(line)
			}

			state, err := a.session.Login(ctx, username, password)
			if err != nil {
				return err
			}
			a.cache.SaveProfile(ctx, state.User)
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(state.Name(), username))
			if noSync {
				return nil
			}
			return runSync(cmd, a, a.profile.LoadPreset)
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "portal username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "portal password (or ETLABPLUS_PASSWORD, or prompt)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip loading datasets after signing in")
	return cmd
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and delete stored credentials and cached data",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Load datasets from the portal into the cache",
		Long:  "Load datasets from the portal into the cache in preset order. Use --preset to pick default, academic, daily or fast.",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			state, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			if state == nil {
				return apperrors.Unauthorized("not signed in, run etlabplus login")
			}
			return runSync(cmd, a, viper.GetString("preset"))
		}),
	}
}

func runSync(cmd *cobra.Command, a *app, preset string) error {
	report, err := a.loader.LoadAll(cmd.Context(), preset)
	if jsonOutput {
		if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
			return printErr
		}
		return err
	}
	renderReport(cmd.OutOrStdout(), report)
	return err
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the state of every cached dataset",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			status := a.cache.Status(ctx)
			if jsonOutput {
				return printJSON(out, status)
			}

			state, err := a.restore(ctx)
			switch {
			case state != nil:
				line := "Signed in as " + displayName(state.Name(), "unknown")
				if !state.ExpiresAt.IsZero() {
					line += ", token expires " + state.ExpiresAt.In(a.location).Format("2006-01-02 15:04")
				}
				fmt.Fprintln(out, line)
			case apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable):
				fmt.Fprintln(out, "Signed in (portal unreachable, session not verified)")
			default:
				fmt.Fprintln(out, "Not signed in")
			}
			fmt.Fprintf(out, "Theme: %s\n\n", a.academic.Theme(ctx))
			renderCacheStatus(out, status)
			return nil
		}),
	}
}

func newAttendanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attendance",
		Short: "Show attendance per subject",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			record, meta, err := a.academic.Attendance(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), record.SubjectList())
			}
			renderAttendance(cmd.OutOrStdout(), record, meta)
			return nil
		}),
	}
}

func newTimetableCmd() *cobra.Command {
	var (
		target string
		week   bool
	)
	cmd := &cobra.Command{
		Use:   "timetable",
		Short: "Show the weekly load and classes held so far",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if week {
				schedule, meta, err := a.academic.Timetable(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), schedule)
				}
				renderWeek(cmd.OutOrStdout(), schedule, meta)
				return nil
			}

			var targetDate *time.Time
			if target != "" {
				t, err := parseDate(target, a.location)
				if err != nil {
					return err
				}
				targetDate = &t
			}
			summary, err := a.academic.TimetableSummary(ctx, targetDate)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		}),
	}
	cmd.Flags().StringVar(&target, "target", "", "count classes up to this date (YYYY-MM-DD) when attendance is not cached")
	cmd.Flags().BoolVar(&week, "week", false, "print the weekly grid")
	return cmd
}

func newProjectCmd() *cobra.Command {
	var (
		target  string
		percent float64
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project attendance to a date and show how many classes can be skipped",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if target == "" {
				return apperrors.InvalidArgument("--target is required")
			}
			t, err := parseDate(target, a.location)
			if err != nil {
				return err
			}
			projection, err := a.academic.Project(cmd.Context(), t, percent)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), projection)
			}
			renderProjection(cmd.OutOrStdout(), projection)
			return nil
		}),
	}
	cmd.Flags().StringVar(&target, "target", "", "target date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&percent, "percent", 0, "also show the skip budget for this percentage")
	return cmd
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the ongoing and the next class",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			next, err := a.academic.NextClass(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), next)
			}
			renderNextClass(cmd.OutOrStdout(), next)
			return nil
		}),
	}
}

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Analyze internal marks and list end-semester grades",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			report, err := a.academic.Results(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			renderResults(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func newAskCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the AI assistant about your attendance or results",
		Long:  "Ask the AI assistant about your attendance or results. Without a question it asks for a summary.",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			answer, err := a.academic.Ask(cmd.Context(), strings.Join(args, " "), kind)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), answer)
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&kind, "type", "t", academic.KindAttendance, "data sent with the question (attendance or results)")
	return cmd
}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the theme preference",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{academic.ThemeLight, academic.ThemeDark},
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				if err := a.academic.SetTheme(ctx, args[0]); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.academic.Theme(ctx))
			return nil
		}),
	}
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := timezone.ParseDate(raw, loc)
	if err != nil {
		return time.Time{}, apperrors.InvalidArgument("dates must look like " + timezone.DateLayout)
	}
	return t, nil
}

// describe renders an error for the terminal, with its code when it has one.
func describe(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return fmt.Sprintf("%s (%s)", appErr.Message, appErr.Code)
	}
	return err.Error()
}
