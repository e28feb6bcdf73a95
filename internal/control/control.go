// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package control exposes the operation surface of spec.md §6 as a plain
// Go interface. The IPC transport that would normally front these
// operations (the original's D-Bus adaptor) is out of scope per spec.md
// §1; Controller is the boundary a future adaptor would wrap.
package control

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/index"
	"github.com/linuxdeepin/go-anything/internal/mount"
	"github.com/linuxdeepin/go-anything/internal/reconcile"
)

// Engine is the subset of the index engine's contract the control
// surface drives directly (spec.md §4.3, §6).
type Engine interface {
	Add(path string) error
	Remove(path string) error
	Search(opts index.SearchOptions) ([]index.Document, error)
	ParallelSearch(opts index.SearchOptions, rules []index.SearchRule) ([]index.Document, error)
}

// PaginatedResult is the paginated search(...) variant's return shape
// (spec.md §6: "([abs-path], new_start, new_end)").
type PaginatedResult struct {
	Paths    []string
	NewStart int
	NewEnd   int
}

// Controller implements the daemon's in-process operation surface
// (spec.md §6). AddPathFinished fires exactly once per AddPath call, in
// the same goroutine that invoked it, matching the "Signal:
// add_path_finished" contract without introducing an async dispatch
// layer the spec never asks for.
type Controller struct {
	log       *zap.SugaredLogger
	engine    Engine
	roots     *mount.Roots
	table     *mount.Table
	resolver  *mount.Resolver
	reconcile *reconcile.Reconciler
	cacheDir  string
	quit      func()

	AddPathFinished func(path string, success bool)

	autoIndexInternal atomic.Bool
	autoIndexExternal atomic.Bool

	logLevelMu sync.RWMutex
	logLevel   string
}

// Config bundles the collaborators a Controller needs.
type Config struct {
	Log        *zap.SugaredLogger
	Engine     Engine
	Roots      *mount.Roots
	Table      *mount.Table
	Resolver   *mount.Resolver
	Reconciler *reconcile.Reconciler
	CacheDir   string
	Quit       func()
	LogLevel   string
}

// New constructs a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		log:       cfg.Log,
		engine:    cfg.Engine,
		roots:     cfg.Roots,
		table:     cfg.Table,
		resolver:  cfg.Resolver,
		reconcile: cfg.Reconciler,
		cacheDir:  cfg.CacheDir,
		quit:      cfg.Quit,
		logLevel:  cfg.LogLevel,
	}
	c.autoIndexInternal.Store(true)
	c.autoIndexExternal.Store(true)
	return c
}

// AddPath indexes a single absolute path on demand (spec.md §6
// add_path).
func (c *Controller) AddPath(absPath string) bool {
	absPath = normalizeAbsPath(absPath)
	err := c.engine.Add(absPath)
	success := err == nil
	if err != nil && c.log != nil {
		c.log.Warnw("control: add_path failed", "path", absPath, "error", err)
	}
	if c.AddPathFinished != nil {
		c.AddPathFinished(absPath, success)
	}
	return success
}

// RemovePath removes a single absolute path from the index (spec.md §6
// remove_path).
func (c *Controller) RemovePath(absPath string) bool {
	absPath = normalizeAbsPath(absPath)
	if err := c.engine.Remove(absPath); err != nil {
		if c.log != nil {
			c.log.Warnw("control: remove_path failed", "path", absPath, "error", err)
		}
		return false
	}
	return true
}

// Search is the simple, non-paginated variant of spec.md §6's search:
// `search(prefix, query, use_regexp) → [abs-path]`. use_regexp maps onto
// the engine's wildcard mode (spec.md §4.3 treats the two query styles,
// substring-AND and glob, as one wildcard flag).
func (c *Controller) Search(prefix, query string, useRegexp bool) ([]string, error) {
	docs, err := c.engine.Search(index.SearchOptions{
		PathPrefix: prefix,
		Query:      query,
		Wildcard:   useRegexp,
	})
	if err != nil {
		return nil, err
	}
	return paths(docs), nil
}

// SearchPaginated is spec.md §6's paginated variant:
// `search(max_count, case_flags, start_offset, end_offset, prefix,
// query, use_regexp) → ([abs-path], new_start, new_end)`. case_flags is
// accepted for contract parity; matching is always case-insensitive
// (tokens and file names are lowercased at index time), so it has no
// further effect here.
func (c *Controller) SearchPaginated(maxCount, caseFlags, startOffset, endOffset int, prefix, query string, useRegexp bool) (PaginatedResult, error) {
	_ = caseFlags
	limit := endOffset - startOffset
	if limit <= 0 || limit > maxCount {
		limit = maxCount
	}

	docs, err := c.engine.Search(index.SearchOptions{
		PathPrefix: prefix,
		Query:      query,
		Wildcard:   useRegexp,
		Offset:     startOffset,
		Limit:      limit,
	})
	if err != nil {
		return PaginatedResult{}, err
	}

	return PaginatedResult{
		Paths:    paths(docs),
		NewStart: startOffset + len(docs),
		NewEnd:   startOffset + len(docs),
	}, nil
}

// ParallelSearch is spec.md §6's parallel_search: a search restricted by
// prefix/query, further narrowed by opaque post-filter rules (spec.md §9
// Open Question (b)).
func (c *Controller) ParallelSearch(prefix, query string, rules []index.SearchRule) ([]string, error) {
	docs, err := c.engine.ParallelSearch(index.SearchOptions{PathPrefix: prefix, Query: query}, rules)
	if err != nil {
		return nil, err
	}
	return paths(docs), nil
}

// HasLFT reports whether absPath itself is currently indexed (spec.md §6
// has_lft — "local full-text [index entry]").
func (c *Controller) HasLFT(absPath string) bool {
	docs, err := c.engine.Search(index.SearchOptions{PathPrefix: absPath, Limit: 1})
	if err != nil {
		return false
	}
	for _, d := range docs {
		if d.FullPath == strings.TrimSuffix(absPath, "/") {
			return true
		}
	}
	return false
}

// HasLFTSubdirectories returns every indexed path strictly beneath
// absPath (spec.md §6 has_lft_subdirectories).
func (c *Controller) HasLFTSubdirectories(absPath string) ([]string, error) {
	docs, err := c.engine.Search(index.SearchOptions{PathPrefix: absPath})
	if err != nil {
		return nil, err
	}

	root := strings.TrimSuffix(absPath, "/")
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.HasPrefix(d.FullPath, root+"/") {
			out = append(out, d.FullPath)
		}
	}
	return out, nil
}

// Refresh, with an empty filter, re-walks every configured indexing root
// and re-queues its contents for reconciliation, returning all roots
// (spec.md §6 refresh). With a non-empty serialURIFilter it returns the
// roots whose event path equals or lies under the filter; those roots
// are not walked and nothing is re-queued.
func (c *Controller) Refresh(ctx context.Context, serialURIFilter string) ([]mount.Root, error) {
	all := c.roots.All()
	if serialURIFilter == "" {
		if err := c.reconcile.WalkAll(ctx); err != nil {
			return nil, err
		}
		return all, nil
	}

	var matched []mount.Root
	for _, r := range all {
		if r.EventPath == serialURIFilter || strings.HasPrefix(r.EventPath, serialURIFilter+"/") {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Sync re-resolves a single mount point (e.g. after it is remounted) and
// returns the roots now reachable through it (spec.md §6 sync).
func (c *Controller) Sync(mountPoint string) ([]mount.Root, error) {
	if err := c.table.Refresh(); err != nil {
		return nil, fmt.Errorf("control: sync refresh: %w", err)
	}

	mountPoint = strings.TrimSuffix(mountPoint, "/")
	var out []mount.Root
	for _, r := range c.roots.All() {
		if r.EventPath == mountPoint || strings.HasPrefix(r.EventPath, mountPoint+"/") {
			out = append(out, r)
		}
	}
	return out, nil
}

// CacheDir returns the persistent index directory (spec.md §6
// cache_dir).
func (c *Controller) CacheDir() string {
	return c.cacheDir
}

// Quit requests daemon shutdown (spec.md §6 quit).
func (c *Controller) Quit() {
	if c.quit != nil {
		c.quit()
	}
}

// AutoIndexInternal/AutoIndexExternal are the two boolean properties of
// spec.md §6. The original daemon uses them to gate whether internal
// (fixed, e.g. /home) versus external (removable media) roots
// participate in reconciliation; this module exposes the properties but
// leaves gating policy to the caller, since spec.md does not define
// removable-media detection.
func (c *Controller) AutoIndexInternal() bool      { return c.autoIndexInternal.Load() }
func (c *Controller) SetAutoIndexInternal(v bool)  { c.autoIndexInternal.Store(v) }
func (c *Controller) AutoIndexExternal() bool      { return c.autoIndexExternal.Load() }
func (c *Controller) SetAutoIndexExternal(v bool)  { c.autoIndexExternal.Store(v) }

// LogLevel/SetLogLevel expose the log_level property. Changing it here
// only updates the stored value; wiring it to the live zap level is the
// daemon's responsibility since Controller does not own the logger's
// AtomicLevel.
func (c *Controller) LogLevel() string {
	c.logLevelMu.RLock()
	defer c.logLevelMu.RUnlock()
	return c.logLevel
}

func (c *Controller) SetLogLevel(level string) {
	c.logLevelMu.Lock()
	c.logLevel = level
	c.logLevelMu.Unlock()
}

func paths(docs []index.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.FullPath
	}
	return out
}

// normalizeAbsPath cleans a user-supplied path before AddPath and
// RemovePath hand it to the engine.
func normalizeAbsPath(p string) string {
	return path.Clean(p)
}
