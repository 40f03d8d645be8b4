package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/pkg/config"
)

// loadConfig reads --config and applies --log-level on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogger builds the logger for a command; log lines go to the command's stderr.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// openAdapter creates the radio adapter; the returned func releases it.
func openAdapter(logger *logrus.Logger) (device.Adapter, func(), error) {
	adapter, err := devicefactory.NewAdapter(logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := adapter.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.WithError(err).Debug("Failed to close adapter")
			}
		}
	}
	return adapter, release, nil
}

// commandContext is cancelled on Ctrl+C or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
