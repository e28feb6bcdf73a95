// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Command fsindexd runs the file-search daemon described by spec.md: it
// receives VFS mutation events from the kernel module over generic
// netlink, maintains a full-text index of file paths, and answers search
// queries through the in-process control surface (internal/control).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linuxdeepin/go-anything/internal/config"
	"github.com/linuxdeepin/go-anything/internal/daemon"
	"github.com/linuxdeepin/go-anything/internal/logging"
)

// version is set at release build time via -ldflags; left as a literal
// default for development builds.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fsindexd",
		Short:         "Incremental full-text file-search daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/fsindexd/config.yaml", "path to the event handler config file")

	root.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground (default action)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version)
			return nil
		},
	})

	return root
}

func runStart(ctx context.Context, configPath string) error {
	cfg, loadErr := config.Load(configPath)
	if loadErr != nil && !errors.Is(loadErr, config.ErrConfigAbsent) {
		return fmt.Errorf("fsindexd: loading config: %w", loadErr)
	}

	log, err := logging.New("info")
	if err != nil {
		return fmt.Errorf("fsindexd: building logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	if errors.Is(loadErr, config.ErrConfigAbsent) {
		log.Warnw("config file not found, using built-in defaults", "path", configPath)
	}

	d, err := daemon.New(log, cfg)
	if err != nil {
		return fmt.Errorf("fsindexd: constructing daemon: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("fsindexd starting",
		"persistent_index_dir", cfg.PersistentIndexDir,
		"volatile_index_dir", cfg.VolatileIndexDir,
		"thread_pool_size", cfg.ThreadPoolSize,
	)

	if err := d.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("fsindexd exited with error", "error", err)
		return err
	}

	log.Infow("fsindexd stopped cleanly")
	return nil
}
