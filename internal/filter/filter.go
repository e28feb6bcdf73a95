// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package filter

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
	"github.com/linuxdeepin/go-anything/internal/mount"
)

// Stats counts events dropped at each stage, plus matched renames and
// emitted events, for observability (spec.md
// §7: "No user-visible error is surfaced for dropped events; operational
// observability is by counters/logs").
type Stats struct {
	UnknownDevice   atomic.Int64
	Blacklisted     atomic.Int64
	DlnfsIgnored    atomic.Int64
	OrphanRenames   atomic.Int64
	MatchedRenames  atomic.Int64
	Emitted         atomic.Int64
}

// Filter is the single-consumer event filter of spec.md §4.2: it drains
// RawEvents, refreshes the mount table on MOUNT/UNMOUNT, coalesces rename
// pairs by cookie, resolves full paths, and applies the blacklist and
// fuse.dlnfs exclusions before emitting FullPathEvents.
type Filter struct {
	log       *zap.SugaredLogger
	table     *mount.Table
	resolver  *mount.Resolver
	blacklist *mount.Blacklist
	roots     *mount.Roots
	cookies   *cookieTable

	Stats Stats
}

// New constructs a Filter over the given mount table, resolver, blacklist
// and configured indexing roots. roots is used to translate an
// event-visible (mount-resolved) path back to its user-visible
// origin_path before emission, so a root whose origin_path differs from
// its event_path (bind mount, container) is indexed under the same
// full_path whether the path arrives via a live kernel event or via
// startup/idle reconciliation (spec.md §3, §4.3 full_path uniqueness).
func New(log *zap.SugaredLogger, table *mount.Table, resolver *mount.Resolver, blacklist *mount.Blacklist, roots *mount.Roots) *Filter {
	return &Filter{
		log:       log,
		table:     table,
		resolver:  resolver,
		blacklist: blacklist,
		roots:     roots,
		cookies:   newCookieTable(),
	}
}

// Run drains in and writes FullPathEvents to out until ctx is canceled or
// in is closed. It never blocks on index I/O (spec.md §5 "Event filter:
// ... never blocks on the index"): out must have enough buffer, or a
// consumer ready, that writes do not stall behind slow downstream work.
func (f *Filter) Run(ctx context.Context, in <-chan kernelproto.RawEvent, out chan<- FullPathEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			f.handle(ctx, ev, out)
		}
	}
}

func (f *Filter) handle(ctx context.Context, ev kernelproto.RawEvent, out chan<- FullPathEvent) {
	dev := kernelproto.DeviceID{Major: ev.Major, Minor: ev.Minor}

	// Step 1: mount lifecycle events only refresh the table.
	if ev.Action.IsMountLifecycle() {
		if err := f.table.Refresh(); err != nil && f.log != nil {
			f.log.Warnw("mount refresh failed", "error", err)
		}
		return
	}

	// Step 2: RENAME_FROM_* stages a pending cookie entry and returns.
	if ev.Action.IsRenameFrom() {
		abs, ok := f.resolveFullPath(dev, ev.Path)
		if !ok {
			f.Stats.UnknownDevice.Add(1)
			return
		}
		f.cookies.put(ev.Cookie, abs)
		return
	}

	// Step 3: RENAME_TO_* either completes a pair (derived rename) or,
	// if the FROM was lost, is treated as a fresh NEW_* at the
	// destination.
	if ev.Action.IsRenameTo() {
		dst, ok := f.resolveFullPath(dev, ev.Path)
		if !ok {
			f.Stats.UnknownDevice.Add(1)
			return
		}
		if f.dropped(dev, dst) {
			return
		}

		if src, matched := f.cookies.takeMatch(ev.Cookie); matched {
			f.Stats.MatchedRenames.Add(1)
			action := kernelproto.ActionRenameFile
			if ev.Action.IsFolder() { // TO's flavor wins (spec.md §9(c))
				action = kernelproto.ActionRenameFolder
			}
			f.emit(out, FullPathEvent{Action: action, Src: src, Dst: dst})
			return
		}

		// Cross-device or otherwise lost FROM: treat as a new file at dst.
		newAction := kernelproto.ActionNewFile
		if ev.Action == kernelproto.ActionRenameToFolder {
			newAction = kernelproto.ActionNewFolder
		}
		f.emit(out, FullPathEvent{Action: newAction, Src: dst})
		return
	}

	// Step 4: everything else resolves and emits directly.
	abs, ok := f.resolveFullPath(dev, ev.Path)
	if !ok {
		f.Stats.UnknownDevice.Add(1)
		return
	}
	if f.dropped(dev, abs) {
		return
	}
	f.emit(out, FullPathEvent{Action: ev.Action, Src: abs})
}

// resolveFullPath resolves (dev, relpath), refreshing the mount table
// once and retrying if the device is initially unknown (spec.md §4.1
// "Unknown devices cause resolve to return ∅; this triggers a refresh on
// the next event"). The result is translated from the event-visible path
// to the configured root's origin_path, so it matches what reconciliation
// would produce for the same file.
func (f *Filter) resolveFullPath(dev kernelproto.DeviceID, relpath string) (string, bool) {
	if abs, ok := f.resolver.Resolve(dev, relpath); ok {
		return f.toOriginPath(abs), true
	}
	if err := f.table.Refresh(); err != nil && f.log != nil {
		f.log.Warnw("mount refresh failed", "error", err)
	}
	abs, ok := f.resolver.Resolve(dev, relpath)
	if !ok {
		return "", false
	}
	return f.toOriginPath(abs), true
}

// toOriginPath translates an event-visible absolute path into its
// configured root's origin_path (spec.md §3 IndexingRoot). Paths outside
// every configured root, or when no Roots is set, pass through
// unchanged.
func (f *Filter) toOriginPath(eventPath string) string {
	if f.roots == nil {
		return eventPath
	}
	if origin, ok := f.roots.ToOriginPath(eventPath); ok {
		return origin
	}
	return eventPath
}

// dropped applies the blacklist and fuse.dlnfs checks, counting but not
// surfacing drops (spec.md §4.2 "Path translation").
func (f *Filter) dropped(dev kernelproto.DeviceID, absPath string) bool {
	if f.resolver.IsDlnfsShadow(dev, absPath) {
		f.Stats.DlnfsIgnored.Add(1)
		return true
	}
	if f.blacklist.Match(absPath) {
		f.Stats.Blacklisted.Add(1)
		return true
	}
	return false
}

func (f *Filter) emit(out chan<- FullPathEvent, ev FullPathEvent) {
	f.Stats.Emitted.Add(1)
	out <- ev
}
