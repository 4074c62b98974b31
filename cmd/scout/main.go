package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/app"
	"github.com/mohammad-safakhou/scout/internal/logging"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "scout",
		Short:         "Research scout: plan, retrieve papers, repos and blogs, and write a themed report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	root.AddCommand(
		runCMD(&cfgPath),
		serveCMD(&cfgPath),
		scheduleCMD(&cfgPath),
		migrateCMD(&cfgPath),
		historyCMD(&cfgPath),
		tokenCMD(&cfgPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context, path string) (*app.App, error) {
	cfg, logger, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, app.Deps{})
}
