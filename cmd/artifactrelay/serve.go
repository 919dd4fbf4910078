package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cachehub/artifactrelay/internal/config"
	"github.com/cachehub/artifactrelay/internal/httpapi"
	"github.com/cachehub/artifactrelay/internal/logging"
	"github.com/cachehub/artifactrelay/internal/negcache"
	"github.com/cachehub/artifactrelay/internal/race"
	"github.com/cachehub/artifactrelay/internal/server"
	"github.com/cachehub/artifactrelay/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.InitLogger(*cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	negative := negcache.New(cfg.FailedCacheTTL.DurationValue())
	client := server.NewUpstreamClient()
	coordinator := race.New(client, st, negative, logger, cfg.Upstreams)

	handler := httpapi.NewHandler(st, negative, coordinator, logger)
	app := httpapi.NewApp(handler)

	logger.WithFields(logging.BaseFields("serve", configPath)).WithField(
		"upstreams", cfg.UpstreamSummary(),
	).Infof("listening on :%d", cfg.ListenPort)

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.ListenPort))
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return app.Shutdown()
	case err := <-errCh:
		return err
	}
}
