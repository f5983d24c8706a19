package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"medvise-backend/internal/config"
	"medvise-backend/internal/core"
	"medvise-backend/internal/db"
	"medvise-backend/internal/extract"
	httpserver "medvise-backend/internal/http"
	"medvise-backend/internal/llm"
	"medvise-backend/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config and PORT)")
	return cmd
}

// runServe wires the server from cfg and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logger := newLogger(cfg, cmd.ErrOrStderr())

	st := store.New(store.Options{TTL: cfg.SessionTTL()})
	janitor, err := store.NewJanitor(st, cfg.Session.SweepSchedule, logger)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	if cfg.OpenAI.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY is not set; completion calls will fail")
	}
	client := llm.NewOpenAIClient(llm.Options{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})

	var notifier core.StageNotifier
	if cfg.Postgres.URL != "" {
		conn, err := db.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		notifier = db.NewNotifier(conn, cfg.Postgres.NotifyChannel)
		logger.Info().Str("channel", cfg.Postgres.NotifyChannel).Msg("stage notifications enabled")
	}

	svc, err := core.NewIntakeService(core.Options{
		Store:                 st,
		LLM:                   client,
		Extractor:             extract.NewPDFExtractor(),
		Notifier:              notifier,
		Logger:                logger,
		CompletionTimeout:     cfg.CompletionTimeout(),
		MaxQARounds:           cfg.Intake.MaxQARounds,
		MaxUploadBytes:        cfg.Intake.MaxUploadBytes,
		LegacyExpertDetection: *cfg.Intake.LegacyExpertDetection,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	gin.SetMode(gin.ReleaseMode)
	srv, err := httpserver.NewServer(svc, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("model", client.Model()).
		Dur("session_ttl", cfg.SessionTTL()).
		Str("sweep", cfg.Session.SweepSchedule).
		Msg("starting")
	if err := srv.Run(ctx, cfg.Server.Port); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
