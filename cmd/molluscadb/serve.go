package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"molluscadb/internal/adapters/httpapi"
	"molluscadb/internal/auth"
	"molluscadb/internal/blob"
	"molluscadb/internal/changefeed"
	"molluscadb/internal/config"
	"molluscadb/internal/core"
	"molluscadb/internal/observability"
	"molluscadb/internal/workspace"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	expvarName      = "molluscadb_operations"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				settings.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, logger, opts.stderr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func provider(s config.HTTPSettings) auth.Provider {
	if s.AuthMode == "static" {
		return auth.StaticProvider{Email: s.StaticEmail}
	}
	return auth.TrustedHeaderProvider{Header: s.AuthHeader}
}

// serve runs until ctx is cancelled. Trace lines, when enabled, go to traceOut.
func serve(ctx context.Context, settings config.Settings, logger *slog.Logger, traceOut io.Writer) error {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	audit := core.NewAuditLog(settings.Log.AuditEntries)
	svcOpts := []core.Option{
		core.WithMetricsRecorder(core.MultiRecorder(metrics, core.NewExpvarRecorder(expvarName))),
		core.WithAuditRecorder(audit),
	}
	if settings.Log.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewLineTracer(traceOut)))
	}
	svc, err := openService(settings, logger, svcOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	stopSnapshots, err := metrics.FollowSnapshots(ctx, svc)
	if err != nil {
		return err
	}
	defer func() { _ = stopSnapshots() }()

	manager := workspace.NewManager(svc, metrics.SetActiveSessions)
	defer func() { _ = manager.Close() }()
	var sessions *auth.Sessions
	sessions = auth.NewSessions(settings.HTTP.SessionTTL, func(id auth.Identity) {
		if sessions.Active(id) {
			return
		}
		if err := manager.Release(id.Email); err != nil {
			logger.Warn("release workspace", "identity", id.Email, "error", err)
		}
	})

	serverOpts := []httpapi.Option{httpapi.WithLogger(logger), httpapi.WithMetrics(metrics), httpapi.WithAudit(audit)}
	if settings.Blob.Archive {
		store, err := blob.Open(ctx, blobConfig(settings.Blob))
		if err != nil {
			return fmt.Errorf("open export archive: %w", err)
		}
		serverOpts = append(serverOpts, httpapi.WithArchive(blob.NewArchive(store, nil)))
		logger.Info("export archive enabled", "driver", store.Driver())
	}

	if settings.MQTT.Enabled() {
		pub, err := changefeed.DialMQTT(changefeed.MQTTConfig{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID,
			Username: settings.MQTT.Username,
			Password: settings.MQTT.Password,
		}, logger)
		if err != nil {
			return err
		}
		feed, err := changefeed.Start(ctx, svc, pub, settings.MQTT.TopicPrefix, logger,
			changefeed.WithPublishRecorder(metrics))
		if err != nil {
			pub.Close()
			return err
		}
		defer feed.Close()
		logger.Info("change feed started", "broker", settings.MQTT.Broker, "prefix", settings.MQTT.TopicPrefix)
	}

	api := httpapi.New(svc, manager, provider(settings.HTTP), sessions, serverOpts...)
	srv := &http.Server{
		Addr:              settings.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       settings.HTTP.ReadTimeout,
		ReadHeaderTimeout: settings.HTTP.ReadTimeout,
		WriteTimeout:      settings.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "auth", settings.HTTP.AuthMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func blobConfig(s config.BlobSettings) blob.Config {
	return blob.Config{
		Driver: s.Driver,
		Root:   s.Root,
		S3: blob.S3Config{
			Region:          s.S3.Region,
			Bucket:          s.S3.Bucket,
			Endpoint:        s.S3.Endpoint,
			AccessKeyID:     s.S3.AccessKeyID,
			SecretAccessKey: s.S3.SecretAccessKey,
			PathStyle:       s.S3.PathStyle,
		},
	}
}
