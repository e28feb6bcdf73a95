// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

func newTestTable(entries ...Entry) *Table {
	t := New(nil)
	t.LoadEntries(entries)
	return t
}

func TestResolveSimpleMount(t *testing.T) {
	dev := kernelproto.DeviceID{Major: 8, Minor: 1}
	table := newTestTable(Entry{Device: dev, MountPoint: "/home/u/docs", FSRoot: "/", FSType: "ext4"})

	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	abs, ok := resolver.Resolve(dev, "/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "/home/u/docs/notes.txt", abs)
}

func TestResolveUnknownDevice(t *testing.T) {
	table := newTestTable()
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	_, ok := resolver.Resolve(kernelproto.DeviceID{Major: 9, Minor: 0}, "/x")
	assert.False(t, ok)
}

func TestResolveBindMountLongestFSRootWins(t *testing.T) {
	dev := kernelproto.DeviceID{Major: 8, Minor: 1}
	table := newTestTable(
		Entry{Device: dev, MountPoint: "/", FSRoot: "/", FSType: "ext4"},
		Entry{Device: dev, MountPoint: "/mnt/bind", FSRoot: "/srv/data", FSType: "ext4"},
	)

	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	abs, ok := resolver.Resolve(dev, "/srv/data/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "/mnt/bind/report.pdf", abs)
}

func TestIsDlnfsShadowBySuffix(t *testing.T) {
	dev := kernelproto.DeviceID{Major: 8, Minor: 1}
	table := newTestTable(Entry{Device: dev, MountPoint: "/home", FSRoot: "/", FSType: "ext4"})
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	assert.True(t, resolver.IsDlnfsShadow(dev, "/home/u/some-very-long-name.longname"))
}

func TestIsDlnfsShadowByFSType(t *testing.T) {
	dev := kernelproto.DeviceID{Major: 8, Minor: 1}
	table := newTestTable(Entry{Device: dev, MountPoint: "/home", FSRoot: "/", FSType: "fuse.dlnfs"})
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	assert.True(t, resolver.IsDlnfsShadow(dev, "/home/u/normal.txt"))
}

func TestBlacklistMatch(t *testing.T) {
	bl := NewBlacklist([]string{"/proc", "/sys/"})

	assert.True(t, bl.Match("/proc"))
	assert.True(t, bl.Match("/proc/1/status"))
	assert.True(t, bl.Match("/sys/kernel"))
	assert.False(t, bl.Match("/procfoo"))
	assert.False(t, bl.Match("/home/u/docs"))
}

func TestRootsToOriginPath(t *testing.T) {
	roots := NewRoots([]Root{{OriginPath: "/host/home", EventPath: "/home"}})

	origin, ok := roots.ToOriginPath("/home/u/docs/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "/host/home/u/docs/notes.txt", origin)

	_, ok = roots.ToOriginPath("/var/log")
	assert.False(t, ok)
}
