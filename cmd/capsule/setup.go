package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/capsule/internal/config"
	applog "github.com/nao1215/capsule/internal/log"
	"github.com/nao1215/capsule/internal/session"
	"github.com/spf13/cobra"
)

// getBoolFlag retrieves a boolean flag from the command or the root
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from the defaults, the configuration file
// and the global flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		configFile, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return nil, err
		}
	}
	cfg.ConfigFilePath = configFile

	// An explicit path must exist. Without one, defaults are fine.
	path := config.FindConfigFile(configFile)
	switch {
	case path != "":
		cf, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cf.Apply(cfg)
	case configFile != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configFile)
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	return cfg, nil
}

// setupLogger creates the process logger. The closer flushes the log file.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, io.Closer) {
	logger, closer := applog.NewLogger(cmd.ErrOrStderr(), applog.Options{
		Verbose: cfg.Verbose,
		JSON:    getBoolFlag(cmd, "json-log"),
		File:    cfg.LogFile,
	})
	slog.SetDefault(logger)
	return logger, closer
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// withSession opens a session for the duration of fn. Configuration,
// logging and signal handling are set up the same way for every command.
func withSession(cmd *cobra.Command, cfg *config.Config, opts []session.Option,
	fn func(ctx context.Context, s *session.Session) error,
) error {
	logger, logCloser := setupLogger(cmd, cfg)
	defer logCloser.Close()

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	s, err := session.Open(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		// Transient certificates must go even after a cancelled run.
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to close session", "error", err)
		}
	}()

	return fn(ctx, s)
}
