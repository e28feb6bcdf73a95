// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxdeepin/go-anything/internal/mount"
)

type fakeBatcher struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeBatcher) InsertPendingPaths(paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, paths...)
}

func (f *fakeBatcher) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	sort.Strings(out)
	return out
}

func TestWalkAllSkipsBlacklistedSubtree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "keep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skip"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep", "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip", "b.txt"), []byte("x"), 0o644))

	roots := mount.NewRoots([]mount.Root{{OriginPath: root, EventPath: root}})
	blacklist := mount.NewBlacklist([]string{filepath.Join(root, "skip")})
	batcher := &fakeBatcher{}

	r := New(nil, roots, blacklist, batcher)
	require.NoError(t, r.WalkAll(context.Background()))

	got := batcher.all()
	assert.Contains(t, got, filepath.Join(root, "keep", "a.txt"))
	for _, p := range got {
		assert.NotContains(t, p, filepath.Join(root, "skip"))
	}
}

func TestWalkAllSkipsMissingRoot(t *testing.T) {
	roots := mount.NewRoots([]mount.Root{{OriginPath: "/does/not/exist", EventPath: "/does/not/exist"}})
	blacklist := mount.NewBlacklist(nil)
	batcher := &fakeBatcher{}

	r := New(nil, roots, blacklist, batcher)
	assert.NoError(t, r.WalkAll(context.Background()))
	assert.Empty(t, batcher.all())
}
