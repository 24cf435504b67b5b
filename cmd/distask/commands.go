package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"distask/internal/app"
	"distask/pkg/logx"
)

const defaultStopTimeout = 15 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and deliver notifications until stopped",
	Args:  cobra.NoArgs,
	RunE:  runService,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log := logx.New(logx.Config{Level: "info", Console: true}, nil)
		v, err := app.Migrate(cmd.Context(), cfgPath, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
		return nil
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.CheckConfig(cfgPath)
		if err != nil {
			return err
		}
		tick := cfg.Scheduler.Tick
		if tick == "" {
			tick = "default"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (tick=%s, legacy_reminders=%t)\n",
			cfgPath, tick, cfg.Scheduler.LegacyReminders)
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run every engine once and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.New(cfgPath)
		if err != nil {
			return err
		}
		rep := a.RunOnce(cmd.Context())
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = a.Stop(ctx, app.StopUnknown)

		fmt.Fprintf(cmd.OutOrStdout(), "tick %s: ran %v in %s\n", rep.ID, rep.Ran, rep.Duration.Round(time.Millisecond))
		return rep.Err
	},
}

func runService(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = a.Stop(sctx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	// The supervisor context derives from ctx, so a signal closes both.
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	stopErr := a.Stop(sctx, reason)
	if reason == app.StopFatalError {
		return errors.Join(a.Err(), stopErr)
	}
	return stopErr
}
