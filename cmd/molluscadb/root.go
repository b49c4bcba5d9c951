package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"molluscadb/internal/config"
	"molluscadb/internal/core"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	stderr     io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stderr: stderr}
	root := &cobra.Command{
		Use:          "molluscadb",
		Short:        "Lab data service for DNA extractions, storage, localities and PCR",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to molluscadb.yaml")
	root.AddCommand(
		newServeCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
	)
	return root
}

// load reads the settings and builds the logger they describe.
func (o *rootOptions) load() (config.Settings, *slog.Logger, error) {
	settings, err := config.Load(o.configPath)
	if err != nil {
		return config.Settings{}, nil, err
	}
	return settings, newLogger(settings.Log, o.stderr), nil
}

func newLogger(s config.LogSettings, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if s.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openService opens the configured store and wraps it in a service.
func openService(settings config.Settings, logger *slog.Logger, extra ...core.Option) (*core.Service, error) {
	store, err := core.OpenPersistentStore(core.StorageConfig{
		Driver:      core.StorageDriver(settings.Storage.Driver),
		SQLitePath:  settings.Storage.SQLitePath,
		PostgresDSN: settings.Storage.PostgresDSN,
	}, core.NewRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", settings.Storage.Driver, err)
	}
	opts := append([]core.Option{core.WithLogger(logger)}, extra...)
	if settings.Rules.Default {
		opts = append(opts, core.WithDefaultRules())
	}
	logger.Info("store opened", "driver", settings.Storage.Driver)
	return core.NewService(store, opts...), nil
}

func actorContext(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return core.WithActor(ctx, actor)
}
