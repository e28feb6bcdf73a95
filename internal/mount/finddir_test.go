// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatchingDirLocatesNestedDirectory(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(target, 0o755))

	table := New(nil)
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	found, ok := resolver.FindMatchingDir(root, target)
	require.True(t, ok)
	assert.Equal(t, target, found)
}

func TestFindMatchingDirMissesOutsideTree(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	table := New(nil)
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	_, ok := resolver.FindMatchingDir(root, other)
	assert.False(t, ok)
}

func TestFindMatchingDirIsMemoized(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(target, 0o755))

	table := New(nil)
	resolver, err := NewResolver(table, nil, 0)
	require.NoError(t, err)

	first, ok := resolver.FindMatchingDir(root, target)
	require.True(t, ok)

	require.NoError(t, os.RemoveAll(target))

	// The cached result still points at the (now-removed) first answer,
	// proving the second lookup used memoization instead of re-walking.
	second, ok := resolver.FindMatchingDir(root, target)
	require.True(t, ok)
	assert.Equal(t, first, second)
}
