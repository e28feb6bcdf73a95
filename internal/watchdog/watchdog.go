// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package watchdog periodically checks that the kernel module's sysfs
// node is still the one the daemon started against. A changed inode
// means the module was unloaded and reloaded (or reloaded after an
// update) out from under the running netlink session, which the
// original daemon handles by exiting so its supervisor restarts it fresh
// (spec.md §4.5 "Watchdog").
package watchdog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultNode is the sysfs node the kernel module exposes while loaded.
const DefaultNode = "/sys/kernel/vfs_monitor"

// DefaultInterval is the polling cadence (spec.md §4.5: "on the order of
// a few seconds").
const DefaultInterval = 3 * time.Second

// Watchdog polls node every interval and calls Restart when its inode
// changes underneath the daemon.
type Watchdog struct {
	log      *zap.SugaredLogger
	node     string
	interval time.Duration

	// Restart is invoked when node's inode has changed since the daemon
	// started watching it. The daemon wires this to its own shutdown path
	// with a distinguished exit code so its process supervisor knows to
	// restart rather than leave it down (spec.md §4.5, §7 "Kernel module
	// reload").
	Restart func()
}

// New constructs a Watchdog. node and interval default to DefaultNode and
// DefaultInterval when zero-valued.
func New(log *zap.SugaredLogger, node string, interval time.Duration, restart func()) *Watchdog {
	if node == "" {
		node = DefaultNode
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watchdog{log: log, node: node, interval: interval, Restart: restart}
}

// Run establishes the baseline inode synchronously, then polls until ctx
// is canceled. A node that is temporarily missing (e.g. during a reboot
// race) is not treated as a reload: only an observed inode change
// triggers Restart (spec.md §4.5). A node that is
// already missing when Run starts cannot establish a baseline at all,
// so it is treated the same as a detected reload (mirrors
// _examples/original_source/src/server/src/main.cpp's
// setup_kernel_module_alive_check, which exits immediately if the
// initial lstat fails rather than waiting for the first timer tick).
func (w *Watchdog) Run(ctx context.Context) {
	var baseline unix.Stat_t
	if err := unix.Stat(w.node, &baseline); err != nil {
		if w.log != nil {
			w.log.Errorw("watchdog: sysfs node unavailable at startup, restarting", "node", w.node, "error", err)
		}
		if w.Restart != nil {
			w.Restart()
		}
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var st unix.Stat_t
			if err := unix.Stat(w.node, &st); err != nil {
				if w.log != nil {
					w.log.Debugw("watchdog: sysfs node unavailable", "node", w.node, "error", err)
				}
				continue
			}

			if st.Ino != baseline.Ino || st.Dev != baseline.Dev {
				if w.log != nil {
					w.log.Warnw("watchdog: kernel module sysfs node changed, restarting", "node", w.node)
				}
				if w.Restart != nil {
					w.Restart()
				}
				return
			}
		}
	}
}
