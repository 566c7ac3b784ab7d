package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbarki/shipdesk/internal/config"
	"github.com/nbarki/shipdesk/internal/logger"
	"github.com/nbarki/shipdesk/internal/observability"
	"github.com/nbarki/shipdesk/internal/tracing"
	"github.com/nbarki/shipdesk/pkg/archive"
	"github.com/nbarki/shipdesk/pkg/gateway"
	"github.com/nbarki/shipdesk/pkg/persona"
	"github.com/nbarki/shipdesk/pkg/provider"
	"github.com/nbarki/shipdesk/pkg/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the chat server in the foreground. The server accepts chat
turns over HTTP, relays them to the configured completion provider,
and archives transcripts when sessions end.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", errs[0])
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	zlog := appLogger.GetZerolog()

	if err := tracing.InitOpenTelemetry("shipdesk", version); err != nil {
		zlog.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.ShutdownOpenTelemetry(ctx)
		}()
	}

	observability.EnsureRegistered()

	completer, err := provider.New(cfg.Provider.Name, provider.Credentials{
		OpenAIKey:    cfg.Provider.OpenAIKey,
		AnthropicKey: cfg.Provider.AnthropicKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize completion provider: %w", err)
	}

	engine := &persona.Engine{
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		RevealFacts: cfg.Persona.RevealFacts,
	}

	var factsFn store.FactsFunc
	if cfg.Persona.RevealFacts {
		factsFn = persona.GenerateFacts
	}
	sessions := store.New(factsFn, zlog)

	archiver, err := archive.NewSQLite(cfg.Archive.DBPath, zlog)
	if err != nil {
		return fmt.Errorf("failed to open transcript archive: %w", err)
	}
	defer archiver.Close()

	sweeper := store.NewSweeper(
		sessions,
		time.Duration(cfg.Sessions.IdleTimeoutMin)*time.Minute,
		cfg.Sessions.SweepSchedule,
		func(ctx context.Context, sess *store.Session) error {
			return archiver.Archive(ctx, archive.Record{
				SessionID:  sess.ID,
				Transcript: sess.Transcript,
				Facts:      sess.Facts,
				TurnCount:  sess.TurnCount,
				EndedAt:    time.Now().UTC(),
			})
		},
		zlog,
	)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	server, err := gateway.NewServer(gateway.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		TypingDelay:    time.Duration(cfg.Server.TypingDelayMs) * time.Millisecond,
		TypingDelayCap: time.Duration(cfg.Server.TypingDelayCapMs) * time.Millisecond,
		Store:          sessions,
		Engine:         engine,
		Completer:      completer,
		Archiver:       archiver,
		Logger:         zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	if err := server.Stop(); err != nil {
		zlog.Error().Err(err).Msg("Failed to stop chat server cleanly")
		return err
	}

	return nil
}
