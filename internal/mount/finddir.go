// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// matchDirKey and matchDirResult back the find_matching_dir memoization
// cache (spec.md §4.1, §9).
type matchDirKey struct {
	mountDir  string
	searchDir string
}

type matchDirResult struct {
	path  string
	found bool
}

// FindMatchingDir walks mountDir's tree, without following symlinks and
// without crossing mount boundaries, looking for a directory whose
// (st_dev, st_ino) matches searchDir. It is used by external query
// translation to recover a directory's path under a different mount
// alias (spec.md §4.1 "Bind-mount expansion" helper).
//
// The search is breadth-first so the first match found is also the
// shortest path, and results are memoized per (mountDir, searchDir) pair
// in a bounded LRU cache to avoid repeated traversal.
func (r *Resolver) FindMatchingDir(mountDir, searchDir string) (string, bool) {
	key := matchDirKey{mountDir: mountDir, searchDir: searchDir}
	if cached, ok := r.findDirCache.Get(key); ok {
		return cached.path, cached.found
	}

	result := findMatchingDirUncached(mountDir, searchDir)
	r.findDirCache.Add(key, result)
	return result.path, result.found
}

func findMatchingDirUncached(mountDir, searchDir string) matchDirResult {
	target, err := statDevIno(searchDir)
	if err != nil {
		return matchDirResult{found: false}
	}

	rootDev, err := statDevIno(mountDir)
	if err != nil {
		return matchDirResult{found: false}
	}

	if target == rootDev {
		return matchDirResult{path: mountDir, found: true}
	}

	type queueEntry struct {
		dir string
		dev devIno
	}
	queue := []queueEntry{{dir: mountDir, dev: rootDev}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(cur.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.Mode()&os.ModeSymlink != 0 {
				continue // never follow symlinks
			}

			childPath := filepath.Join(cur.dir, entry.Name())
			childDev, err := statDevIno(childPath)
			if err != nil {
				continue
			}
			if childDev.dev != cur.dev.dev {
				continue // do not cross mount boundaries
			}
			if childDev == target {
				return matchDirResult{path: childPath, found: true}
			}
			queue = append(queue, queueEntry{dir: childPath, dev: childDev})
		}
	}

	return matchDirResult{found: false}
}

type devIno struct {
	dev uint64
	ino uint64
}

func statDevIno(p string) (devIno, error) {
	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return devIno{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return devIno{dev: uint64(st.Dev), ino: st.Ino}, nil
}
