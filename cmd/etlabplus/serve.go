package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/etlabplus/server"
	apiv1 "github.com/hrygo/etlabplus/server/router/api/v1"
	"github.com/hrygo/etlabplus/server/runner/refresh"
)

func newServeCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cached datasets over a local JSON API",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			state, err := a.restore(ctx)
			switch {
			case err != nil:
				slog.Warn("serving cached data only", slog.String("error", err.Error()))
			case state == nil:
				slog.Warn("not signed in, serving cached data only")
			}
			a.loader.WarmStart(ctx)

			api := apiv1.NewAPIV1Service(a.profile, a.academic, a.cache, a.loader, a.location)
			var refresher *refresh.Runner
			if interval > 0 {
				refresher = refresh.NewRunner(a.loader, a.cache, interval)
			}
			s := server.NewServer(a.profile, api, refresher, a.logger)
			if err := s.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", s.Addr())

			<-ctx.Done()
			s.Shutdown(context.WithoutCancel(ctx))
			return nil
		}),
	}
	cmd.Flags().String("addr", "127.0.0.1", "address of the local API")
	cmd.Flags().Int("port", 8087, "port of the local API")
	cmd.Flags().DurationVar(&interval, "refresh", refresh.DefaultInterval, "how often stale datasets are reloaded (0 disables)")
	for _, name := range []string{"addr", "port"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}
