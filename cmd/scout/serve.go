package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/scout/internal/scheduler"
	srv "github.com/mohammad-safakhou/scout/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var withSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if addr == "" {
				addr = a.Config.Server.Address
			}
			server := srv.New(srv.Options{
				Runner:    a.Pipeline,
				History:   a.History(),
				Index:     a.Index,
				Metrics:   a.Metrics,
				JWTSecret: a.Config.Server.JWTSecret,
				Logger:    a.Logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Start(addr) })
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			if withSchedule && len(a.Config.Schedule.Jobs) > 0 {
				var locker scheduler.Locker
				if a.Redis != nil {
					locker = scheduler.RedisLocker{Client: a.Redis}
				}
				sched, err := scheduler.New(a.Config.Schedule, a.Pipeline, locker, a.Logger)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			err = g.Wait()
			a.Logger.Info("server stopped", zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.address)")
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "also run the configured schedule")
	return cmd
}
