package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
)

// app carries the state shared by every subcommand for one invocation.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	logFormat string

	cfg      config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	services *services
}

// execute runs one invocation with args and always releases the store,
// including when the command fails.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "attendance",
		Short:         "Operate the attendance tracker store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "json", "log output format: json or text")

	root.AddCommand(newMigrateCommand(a), newStatsCommand(a), newPromptsCommand(a))
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	logger, err := newLogger(a.stderr, a.logFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	ctx := logging.ContextWithLogger(cmd.Context(), logger)
	cmd.SetContext(logging.WithAttrs(ctx, "command", cmd.Name(), "invocation_id", uuid.NewString()))

	store, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLiteDSN))
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store
	a.services = newServices(cfg, store, logger)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	if err != nil && a.logger != nil {
		a.logger.Error("failed to close store", "error", err)
	}
	return err
}

func newLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, errors.New("log format must be json or text")
}
