// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mount

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

// dlnfsFSType is the userspace long-filename shadow filesystem whose
// events must never be indexed (spec.md §4.1 "Long-filename filter").
const dlnfsFSType = "fuse.dlnfs"

// longnameSuffix marks a shadow file storing an oversized filename.
const longnameSuffix = ".longname"

// Resolver translates kernel-emitted (device, relative-path) triples into
// absolute user-visible paths, and applies the fuse.dlnfs long-filename
// exclusion (spec.md §4.1).
type Resolver struct {
	table *Table
	log   *zap.SugaredLogger

	findDirCache *lru.Cache[matchDirKey, matchDirResult]
}

// NewResolver builds a Resolver over table. findDirCacheSize bounds the
// find_matching_dir memoization cache (spec.md §9: "Unbounded in source.
// Strategy: bounded LRU").
func NewResolver(table *Table, log *zap.SugaredLogger, findDirCacheSize int) (*Resolver, error) {
	if findDirCacheSize <= 0 {
		findDirCacheSize = 256
	}
	cache, err := lru.New[matchDirKey, matchDirResult](findDirCacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{table: table, log: log, findDirCache: cache}, nil
}

// Resolve returns the user-visible absolute path for (dev, relpath), or
// ok=false if dev is unknown or relpath falls outside every mount
// (spec.md §4.1 contract).
func (r *Resolver) Resolve(dev kernelproto.DeviceID, relpath string) (abs string, ok bool) {
	entries, found := r.table.EntriesFor(dev)
	if !found {
		return "", false
	}

	// entries is sorted longest-FSRoot-first by Table.Refresh, so the
	// first entry whose FSRoot prefixes relpath is the canonical one
	// (spec.md §4.1 "Bind-mount expansion").
	for _, e := range entries {
		root := e.FSRoot
		if root == "" {
			root = "/"
		}
		if !pathHasPrefix(relpath, root) {
			continue
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(relpath, root), "/")
		return joinAbs(e.MountPoint, rest), true
	}

	return "", false
}

// pathHasPrefix reports whether p lies under root, where root is itself
// an absolute path (mount "fs_root" semantics): either p equals root, or
// p continues with a "/" right after root.
func pathHasPrefix(p, root string) bool {
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+"/")
}

func joinAbs(mountPoint, rest string) string {
	if rest == "" {
		return path.Clean(mountPoint)
	}
	return path.Join(mountPoint, rest)
}

// IsDlnfsShadow reports whether the resolved path should be ignored
// because it lives on a fuse.dlnfs mount or is itself a ".longname"
// shadow file (spec.md §4.1). The suffix check runs first because it's a
// cheap string comparison versus a mount-table lock, matching the
// original daemon's ignored_event ordering (SPEC_FULL.md §C.4).
func (r *Resolver) IsDlnfsShadow(dev kernelproto.DeviceID, absPath string) bool {
	if strings.HasSuffix(absPath, longnameSuffix) {
		return true
	}

	entries, ok := r.table.EntriesFor(dev)
	if !ok {
		return false
	}
	for _, e := range entries {
		if e.FSType == dlnfsFSType {
			return true
		}
	}
	return false
}
