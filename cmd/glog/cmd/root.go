/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/config"
	"github.com/ssargent/glogstore/pkg/di"
	"github.com/ssargent/glogstore/pkg/store"
)

var container *di.Container

// SetContainer injects the dependency container used by all commands
func SetContainer(c *di.Container) {
	container = c
}

// NewRootCmd builds the glog command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "glog",
		Short: "glog - crash-safe append-only log storage",
		Long: `glog writes application records into compact, optionally compressed and
encrypted log files that survive crashes and corruption. Records go to a
cache file first and are rotated into archives that expire by age, total
size or file count.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if container == nil {
				return fmt.Errorf("dependency container not initialized")
			}
			level := slog.LevelInfo
			if name, _ := cmd.Flags().GetString("log-level"); name != "" {
				level = config.ParseLevel(name)
			} else if cfg, err := loadConfig(cmd); err == nil {
				level = cfg.LogLevel()
			}
			logger := newLogger(cmd.ErrOrStderr(), level)
			slog.SetDefault(logger)
			container.SetLogger(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", config.GetDefaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default from config, else info)")

	rootCmd.AddCommand(
		newInitCmd(),
		newKeygenCmd(),
		newReadCmd(),
		newInspectCmd(),
		newWriteCmd(),
		newSnapshotCmd(),
		newServeCmd(),
		newServiceCmd(),
	)
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// errNoConfig means --config names no file. Commands that can run without a
// config check for it; any other load error is reported.
var errNoConfig = errors.New("config file does not exist")

// loadConfig reads the file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" || !config.ConfigExists(path) {
		return nil, fmt.Errorf("%w: %s", errNoConfig, path)
	}
	return config.LoadConfig(path)
}

// streamConfig resolves the engine options of proto. A stream in the config
// file wins; --root overrides its directory. Without a config entry the
// engine defaults are used under --root.
func streamConfig(cmd *cobra.Command, proto string) (store.Config, error) {
	root, _ := cmd.Flags().GetString("root")

	cfg, err := loadConfig(cmd)
	switch {
	case errors.Is(err, errNoConfig):
	case err != nil:
		return store.Config{}, err
	default:
		if s, ok := cfg.Stream(proto); ok {
			sc := cfg.StoreConfig(s)
			if root != "" {
				sc.RootDirectory = root
			}
			return sc, nil
		}
		if root == "" {
			root = cfg.RootDir
		}
	}
	if root == "" {
		return store.Config{}, fmt.Errorf("stream %q is not configured; pass --root", proto)
	}
	return store.DefaultConfig(root, proto), nil
}

// openStream opens proto in a fresh registry without a maintenance loop.
// The returned func closes both.
func openStream(cmd *cobra.Command, proto string, mutate func(*store.Config)) (*store.Handle, func(), error) {
	sc, err := streamConfig(cmd, proto)
	if err != nil {
		return nil, nil, err
	}
	if mutate != nil {
		mutate(&sc)
	}

	registry := container.NewRegistry(store.WithMaintenanceInterval(0))
	h, err := registry.Open(sc)
	if err != nil {
		_ = registry.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := h.Close(); err != nil {
			container.Logger().Error("failed to close stream", "proto", proto, "error", err)
		}
		_ = registry.Close()
	}
	return h, closeFn, nil
}
