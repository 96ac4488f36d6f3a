package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/fmrank/internal/server"
	"github.com/hyperjump/fmrank/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			components, err := initializeComponents(cfg, logger, cfg.Storage.RecordPredictions)
			if err != nil {
				return err
			}
			defer components.Close()

			srvOpts := []server.Option{
				server.WithLogger(logger),
				server.WithDefaultHandle(components.Default),
			}
			if components.Storage != nil {
				srvOpts = append(srvOpts, server.WithStorage(components.Storage))
			}
			srv := server.NewServer(components.Registry, components.Pipeline, cfg, srvOpts...)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Watch.Model && cfg.Engine.ModelPath != "" {
				initOpts := cfg.Engine.InitOptions()
				w := watcher.NewWatcher(
					[]string{cfg.Engine.ModelPath},
					func(path string) {
						logger.Info("model file changed", zap.String("path", path))
						_ = srv.ReloadDefault(initOpts)
					},
					watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
					watcher.WithLogger(logger),
					watcher.WithOnRemove(func(path string) {
						logger.Warn("model file removed; keeping current engine", zap.String("path", path))
					}),
				)
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
