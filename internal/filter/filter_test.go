// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
	"github.com/linuxdeepin/go-anything/internal/mount"
)

var testDev = kernelproto.DeviceID{Major: 8, Minor: 1}

func newTestFilter(t *testing.T, roots ...*mount.Roots) *Filter {
	table := mount.New(nil)
	table.LoadEntries([]mount.Entry{{Device: testDev, MountPoint: "/home/u/docs", FSRoot: "/", FSType: "ext4"}})

	resolver, err := mount.NewResolver(table, nil, 0)
	require.NoError(t, err)

	blacklist := mount.NewBlacklist([]string{"/proc"})

	var r *mount.Roots
	if len(roots) > 0 {
		r = roots[0]
	}
	return New(nil, table, resolver, blacklist, r)
}

func recvWithTimeout(t *testing.T, ch <-chan FullPathEvent) FullPathEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for FullPathEvent")
		return FullPathEvent{}
	}
}

func TestFilterRenameCoalescing(t *testing.T) {
	f := newTestFilter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan kernelproto.RawEvent, 4)
	out := make(chan FullPathEvent, 4)
	go f.Run(ctx, in, out)

	in <- kernelproto.RawEvent{Action: kernelproto.ActionRenameFromFile, Cookie: 7, Major: 8, Minor: 1, Path: "/old.txt"}
	in <- kernelproto.RawEvent{Action: kernelproto.ActionRenameToFile, Cookie: 7, Major: 8, Minor: 1, Path: "/new.txt"}

	ev := recvWithTimeout(t, out)
	assert.Equal(t, kernelproto.ActionRenameFile, ev.Action)
	assert.Equal(t, "/home/u/docs/old.txt", ev.Src)
	assert.Equal(t, "/home/u/docs/new.txt", ev.Dst)
	assert.True(t, ev.IsRename())
}

func TestFilterOrphanRenameToBecomesNew(t *testing.T) {
	f := newTestFilter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan kernelproto.RawEvent, 4)
	out := make(chan FullPathEvent, 4)
	go f.Run(ctx, in, out)

	// No matching RENAME_FROM was ever staged for this cookie.
	in <- kernelproto.RawEvent{Action: kernelproto.ActionRenameToFile, Cookie: 99, Major: 8, Minor: 1, Path: "/surprise.txt"}

	ev := recvWithTimeout(t, out)
	assert.Equal(t, kernelproto.ActionNewFile, ev.Action)
	assert.Equal(t, "/home/u/docs/surprise.txt", ev.Src)
}

func TestFilterBlacklistedPathDropped(t *testing.T) {
	f := newTestFilter(t)
	blacklist := mount.NewBlacklist([]string{"/home/u/docs"})
	f.blacklist = blacklist

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan kernelproto.RawEvent, 4)
	out := make(chan FullPathEvent, 4)
	go f.Run(ctx, in, out)

	in <- kernelproto.RawEvent{Action: kernelproto.ActionNewFile, Major: 8, Minor: 1, Path: "/secret.txt"}

	select {
	case ev := <-out:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int64(1), f.Stats.Blacklisted.Load())
}

func TestFilterMountLifecycleRefreshesOnly(t *testing.T) {
	f := newTestFilter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan kernelproto.RawEvent, 4)
	out := make(chan FullPathEvent, 4)
	go f.Run(ctx, in, out)

	in <- kernelproto.RawEvent{Action: kernelproto.ActionMount}

	select {
	case ev := <-out:
		t.Fatalf("expected no event from a mount-lifecycle action, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestFilterTranslatesEventPathToOriginPath covers a root whose
// user-visible origin_path differs from its event-visible event_path
// (bind mount / container), asserting the emitted full_path matches what
// reconciliation would produce for the same file (spec.md §3, §4.3).
func TestFilterTranslatesEventPathToOriginPath(t *testing.T) {
	roots := mount.NewRoots([]mount.Root{{OriginPath: "/home/u/docs", EventPath: "/mnt/container/docs"}})
	f := newTestFilter(t, roots)

	table := mount.New(nil)
	table.LoadEntries([]mount.Entry{{Device: testDev, MountPoint: "/mnt/container/docs", FSRoot: "/", FSType: "ext4"}})
	resolver, err := mount.NewResolver(table, nil, 0)
	require.NoError(t, err)
	f.table = table
	f.resolver = resolver

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan kernelproto.RawEvent, 4)
	out := make(chan FullPathEvent, 4)
	go f.Run(ctx, in, out)

	in <- kernelproto.RawEvent{Action: kernelproto.ActionNewFile, Major: 8, Minor: 1, Path: "/report.txt"}

	ev := recvWithTimeout(t, out)
	assert.Equal(t, "/home/u/docs/report.txt", ev.Src)
}
