package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scout/internal/scheduler"
)

func scheduleCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured recurring queries until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if len(a.Config.Schedule.Jobs) == 0 {
				return fmt.Errorf("no schedule.jobs configured")
			}
			var locker scheduler.Locker
			if a.Redis != nil {
				locker = scheduler.RedisLocker{Client: a.Redis}
			}
			sched, err := scheduler.New(a.Config.Schedule, a.Pipeline, locker, a.Logger)
			if err != nil {
				return err
			}
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
