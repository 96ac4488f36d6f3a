// Package main is the fmrank CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/fmrank/internal/config"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/predict"
	"github.com/hyperjump/fmrank/internal/storage"
	"github.com/hyperjump/fmrank/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/fmrank/config.yaml"

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fmrank",
		Short:         "Factorization-machine top-K inference service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newPredictCmd(opts),
		newRunCmd(opts),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fmrank version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if neither exists the
// built-in defaults are used. An explicit path that does not exist is an error.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads and validates config and builds the logger.
func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	debugMode := cfg.Debug || opts.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, nil
}

// Components holds the initialized prediction stack.
type Components struct {
	Registry *lifecycle.Registry
	Pipeline *predict.Pipeline
	Storage  *storage.SQLiteStorage
	Default  lifecycle.Handle
}

// Close disposes every engine and closes storage.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents creates the registry, the default engine handle, the optional
// prediction log and the pipeline over them.
func initializeComponents(cfg *config.Config, logger *zap.Logger, recordPredictions bool) (*Components, error) {
	c := &Components{Registry: lifecycle.NewRegistry(lifecycle.WithLogger(logger))}

	pipelineOpts := []predict.PipelineOption{
		predict.WithLogger(logger),
		predict.WithMaxK(cfg.Predict.MaxK),
	}
	if recordPredictions {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open prediction log: %w", err)
		}
		c.Storage = store
		pipelineOpts = append(pipelineOpts, predict.WithRecorder(store))
	}

	h, err := c.Registry.Init(cfg.Engine.InitOptions())
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Default = h
	c.Pipeline = predict.NewPipeline(c.Registry, pipelineOpts...)
	return c, nil
}
