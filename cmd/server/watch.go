package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medvise-backend/internal/config"
	"medvise-backend/internal/db"
)

func newWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print session stage changes published by running servers",
		Long:  "Subscribes to the Postgres notification channel and prints one line per stage change until interrupted. Requires DATABASE_URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("watch: DATABASE_URL is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg, cmd.ErrOrStderr())
			events, err := db.Listen(ctx, cfg.Postgres.URL, cfg.Postgres.NotifyChannel, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ev := range events {
				fmt.Fprintf(out, "%s  %s  %s\n", ev.At.Local().Format(time.RFC3339), ev.SessionID, ev.Stage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}
