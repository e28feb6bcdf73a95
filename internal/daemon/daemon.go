// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package daemon wires the kernel event source, mount resolver, event
// filter, job batcher, worker pool, index engine, reconciler, watchdog
// and control surface into one supervised process (spec.md §5).
package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linuxdeepin/go-anything/internal/config"
	"github.com/linuxdeepin/go-anything/internal/control"
	"github.com/linuxdeepin/go-anything/internal/filter"
	"github.com/linuxdeepin/go-anything/internal/index"
	"github.com/linuxdeepin/go-anything/internal/jobqueue"
	"github.com/linuxdeepin/go-anything/internal/kernel"
	"github.com/linuxdeepin/go-anything/internal/kernelproto"
	"github.com/linuxdeepin/go-anything/internal/mount"
	"github.com/linuxdeepin/go-anything/internal/reconcile"
	"github.com/linuxdeepin/go-anything/internal/watchdog"
	"github.com/linuxdeepin/go-anything/internal/workerpool"
)

// RestartExitCode is the process exit code used when the watchdog
// requests a restart (spec.md §6 "Exit codes").
const RestartExitCode = 1

// rawEventQueueDepth bounds the kernel source's MPSC queue (spec.md §4.2
// "bounded MPSC queue").
const rawEventQueueDepth = 4096

// fullPathEventQueueDepth bounds the filter's output channel; it must be
// large enough that the filter never blocks on index I/O (spec.md §5
// "Event filter ... never blocks on the index").
const fullPathEventQueueDepth = 4096

// findDirCacheSize bounds the resolver's find_matching_dir memoization
// (spec.md §9, §4.1).
const findDirCacheSize = 1024

// Daemon owns every long-running component and supervises them as a
// group (spec.md §5 "Concurrency & ownership").
type Daemon struct {
	log    *zap.SugaredLogger
	cfg    config.EventHandlerConfig
	engine *index.Engine

	Control *control.Controller

	components *components
	quitOnce   func()
}

// New constructs every component from cfg. Only the worker pool's
// goroutines start here; call Run to start the rest of the daemon.
func New(log *zap.SugaredLogger, cfg config.EventHandlerConfig) (*Daemon, error) {
	table := mount.New(log)
	if err := table.Refresh(); err != nil {
		return nil, fmt.Errorf("daemon: initial mount refresh: %w", err)
	}

	resolver, err := mount.NewResolver(table, log, findDirCacheSize)
	if err != nil {
		return nil, fmt.Errorf("daemon: building resolver: %w", err)
	}

	blacklist := mount.NewBlacklist(cfg.BlacklistPaths)

	roots := make([]mount.Root, 0, len(cfg.IndexingPaths))
	for _, p := range cfg.IndexingPaths {
		roots = append(roots, mount.Root{OriginPath: p.OriginPath, EventPath: p.EventPath})
	}
	indexRoots := mount.NewRoots(roots)

	engine, err := index.Open(log, index.Config{
		PersistentDir:           cfg.PersistentIndexDir,
		VolatileFlushInterval:   cfg.CommitVolatileIndexTimeout(),
		PersistentFlushInterval: cfg.CommitPersistentIndexTimeout(),
		FileTypeMapping:         cfg.FileTypeMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: opening index engine: %w", err)
	}

	pool := workerpool.New(log, engine, cfg.ThreadPoolSize)
	batcher := jobqueue.New(log, pool, engine, 0)
	engine.StaleHook = func(path string) {
		batcher.Submit(jobqueue.Job{Kind: jobqueue.Remove, Src: path})
	}

	eventFilter := filter.New(log, table, resolver, blacklist, indexRoots)
	source := kernel.New(log, kernelproto.FamilyName, kernelproto.GroupName)

	reconciler := reconcile.New(log, indexRoots, blacklist, batcher)

	d := &Daemon{log: log, cfg: cfg, engine: engine}

	wd := watchdog.New(log, "", 0, func() {
		if d.log != nil {
			d.log.Warnw("daemon: watchdog-triggered restart")
		}
		os.Exit(RestartExitCode)
	})

	d.Control = control.New(control.Config{
		Log:        log,
		Engine:     engine,
		Roots:      indexRoots,
		Table:      table,
		Resolver:   resolver,
		Reconciler: reconciler,
		CacheDir:   cfg.PersistentIndexDir,
		Quit:       func() { d.quitOnce() },
	})

	d.components = &components{
		table:      table,
		resolver:   resolver,
		filter:     eventFilter,
		source:     source,
		batcher:    batcher,
		pool:       pool,
		engine:     engine,
		reconciler: reconciler,
		watchdog:   wd,
	}

	return d, nil
}

// components groups the wired long-running collaborators; kept separate
// from Daemon's exported surface so Run can own their lifecycle cleanly.
type components struct {
	table      *mount.Table
	resolver   *mount.Resolver
	filter     *filter.Filter
	source     *kernel.Source
	batcher    *jobqueue.Batcher
	pool       *workerpool.Pool
	engine     *index.Engine
	reconciler *reconcile.Reconciler
	watchdog   *watchdog.Watchdog
}

// Run starts every component and blocks until ctx is canceled (normally
// by SIGINT/SIGTERM, handled by cmd/fsindexd) or a component fails
// unrecoverably. It runs the startup reconciliation walk alongside the
// other components. On the way out it flushes the batcher's queued live
// jobs, waits for the worker pool, then flushes the volatile index tier
// (spec.md §5 "Cancellation and shutdown"). The filter and the goroutine
// feeding the batcher stop on cancellation; events still buffered in
// their channels are not drained.
func (d *Daemon) Run(ctx context.Context) error {
	c := d.components

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.quitOnce = cancel

	raw := make(chan kernelproto.RawEvent, rawEventQueueDepth)
	full := make(chan filter.FullPathEvent, fullPathEventQueueDepth)

	group, gctx := errgroup.WithContext(runCtx)

	group.Go(func() error { return c.source.Run(gctx, raw) })

	group.Go(func() error {
		c.filter.Run(gctx, raw, full)
		return nil
	})

	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-full:
				if !ok {
					return nil
				}
				job := jobqueue.FromFullPathEvent(ev)
				c.batcher.Submit(job)
			}
		}
	})

	group.Go(func() error {
		c.batcher.Run(gctx)
		return nil
	})

	group.Go(func() error {
		c.watchdog.Run(gctx)
		return nil
	})

	group.Go(func() error {
		return c.reconciler.WalkAll(gctx)
	})

	go d.commitLoop(gctx)

	err := group.Wait()

	c.pool.Shutdown(context.Background())
	if flushErr := c.engine.Close(); flushErr != nil && d.log != nil {
		d.log.Warnw("daemon: final index flush failed", "error", flushErr)
	}

	return err
}

// commitLoop periodically flushes the volatile index tier on the two
// configured cadences (spec.md §4.3 "Durability").
func (d *Daemon) commitLoop(ctx context.Context) {
	volatileInterval := d.cfg.CommitVolatileIndexTimeout()
	if volatileInterval <= 0 {
		volatileInterval = 2 * time.Second
	}
	persistentInterval := d.cfg.CommitPersistentIndexTimeout()
	if persistentInterval <= 0 {
		persistentInterval = 30 * time.Second
	}

	volatileTicker := time.NewTicker(volatileInterval)
	defer volatileTicker.Stop()
	persistentTicker := time.NewTicker(persistentInterval)
	defer persistentTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-volatileTicker.C:
			if err := d.engine.FlushVolatile(); err != nil && d.log != nil {
				d.log.Warnw("daemon: volatile flush failed", "error", err)
			}
		case <-persistentTicker.C:
			if err := d.engine.FlushPersistent(); err != nil && d.log != nil {
				d.log.Warnw("daemon: persistent flush failed", "error", err)
			}
		}
	}
}
