// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package mount maintains a snapshot of the kernel's mount table and
// resolves (device, relative-path) pairs emitted by the kernel module
// into user-visible absolute paths (spec.md §4.1).
package mount

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/moby/sys/mountinfo"
	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

// ErrUnknownDevice reports that no mount entry exists for a device id.
// Resolve does not return it; Resolve signals an unknown device through
// its ok result.
var ErrUnknownDevice = errors.New("mount: unknown device id")

// Entry is a single row of the mount table (spec.md §3 MountEntry). A
// bind mount appears with a non-"/" FSRoot.
type Entry struct {
	Device     kernelproto.DeviceID
	MountPoint string
	FSRoot     string
	FSType     string
}

// Table is a single-writer, multi-reader snapshot of
// (major,minor) -> []Entry, refreshed from /proc/self/mountinfo on every
// MOUNT/UNMOUNT event and at startup (spec.md §4.1 "Mount refresh").
//
// The filter goroutine refreshes it on mount events and Controller.Sync
// refreshes it on demand; every refresh swaps the map under the write
// lock, and readers go through RLock, consistent with the rwlock design
// in spec.md §5 "Shared resources".
type Table struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	byDev   map[kernelproto.DeviceID][]Entry
	version uint64 // bumped on every successful Refresh or LoadEntries
}

// New constructs an empty Table. Call Refresh before first use.
func New(log *zap.SugaredLogger) *Table {
	return &Table{
		log:   log,
		byDev: make(map[kernelproto.DeviceID][]Entry),
	}
}

// Refresh re-parses /proc/self/mountinfo and atomically swaps the
// device map (spec.md §9 "Mount table shared across threads": readers see
// either the old or the new snapshot, never a partial one).
func (t *Table) Refresh() error {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return fmt.Errorf("mount: parsing mountinfo: %w", err)
	}

	next := make(map[kernelproto.DeviceID][]Entry, len(infos))
	for _, info := range infos {
		dev := kernelproto.DeviceID{
			Major: uint16(info.Major),
			Minor: uint8(info.Minor),
		}
		next[dev] = append(next[dev], Entry{
			Device:     dev,
			MountPoint: info.Mountpoint,
			FSRoot:     info.Root,
			FSType:     info.FSType,
		})
	}

	// Longest FSRoot first so Resolve's first match is the canonical one
	// (spec.md §4.1 "Bind-mount expansion"). Entries whose FSRoots have
	// equal length are left in no defined order.
	for _, entries := range next {
		sort.Slice(entries, func(i, j int) bool {
			return len(entries[i].FSRoot) > len(entries[j].FSRoot)
		})
	}

	t.mu.Lock()
	t.byDev = next
	t.version++
	t.mu.Unlock()

	if t.log != nil {
		t.log.Debugw("mount table refreshed", "devices", len(next))
	}
	return nil
}

// LoadEntries replaces the table's contents directly, bypassing
// /proc/self/mountinfo. Used by tests and by callers that already have a
// parsed mount snapshot from elsewhere.
func (t *Table) LoadEntries(entries []Entry) {
	next := make(map[kernelproto.DeviceID][]Entry, len(entries))
	for _, e := range entries {
		next[e.Device] = append(next[e.Device], e)
	}
	for _, es := range next {
		sort.Slice(es, func(i, j int) bool { return len(es[i].FSRoot) > len(es[j].FSRoot) })
	}

	t.mu.Lock()
	t.byDev = next
	t.version++
	t.mu.Unlock()
}

// Version returns a counter bumped on every successful Refresh or
// LoadEntries. The resolver's find_matching_dir cache does not consult
// it.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// EntriesFor returns a copy of the mount entries known for dev, longest
// FSRoot first.
func (t *Table) EntriesFor(dev kernelproto.DeviceID) ([]Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.byDev[dev]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, true
}

// ContainsDevice reports whether dev has at least one known mount entry.
func (t *Table) ContainsDevice(dev kernelproto.DeviceID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byDev[dev]
	return ok
}

// MountPoints returns every mount point currently known, used by the
// "Mount bijection" testable property (spec.md §8.5).
func (t *Table) MountPoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for _, entries := range t.byDev {
		for _, e := range entries {
			out = append(out, e.MountPoint)
		}
	}
	return out
}
