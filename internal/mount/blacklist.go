// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mount

import "strings"

// Blacklist holds prefix-anchored absolute path rules excluded from
// indexing (spec.md §3 BlacklistRule). Checks apply both to live events
// and full-disk reconciliation (spec.md §4.1).
type Blacklist struct {
	rules []string
}

// NewBlacklist builds a Blacklist from configured prefixes.
func NewBlacklist(rules []string) *Blacklist {
	clean := make([]string, 0, len(rules))
	for _, r := range rules {
		clean = append(clean, strings.TrimSuffix(r, "/"))
	}
	return &Blacklist{rules: clean}
}

// Match reports whether p begins with any configured rule, followed by
// "/" or end-of-string (spec.md §3 BlacklistRule definition).
func (b *Blacklist) Match(p string) bool {
	for _, rule := range b.rules {
		if rule == "" {
			continue
		}
		if p == rule || strings.HasPrefix(p, rule+"/") {
			return true
		}
	}
	return false
}

// Root is a prefix-anchored indexing root, possibly with a distinct
// event-visible path (spec.md §3 IndexingRoot).
type Root struct {
	OriginPath string
	EventPath  string
}

// Roots is the configured set of indexing roots.
type Roots struct {
	roots []Root
}

// NewRoots builds a Roots set, defaulting EventPath to OriginPath when
// unset.
func NewRoots(roots []Root) *Roots {
	clean := make([]Root, 0, len(roots))
	for _, r := range roots {
		if r.EventPath == "" {
			r.EventPath = r.OriginPath
		}
		r.OriginPath = strings.TrimSuffix(r.OriginPath, "/")
		r.EventPath = strings.TrimSuffix(r.EventPath, "/")
		clean = append(clean, r)
	}
	return &Roots{roots: clean}
}

// All returns every configured root.
func (r *Roots) All() []Root {
	out := make([]Root, len(r.roots))
	copy(out, r.roots)
	return out
}

// ContainsEventPath reports whether an event-visible absolute path p
// falls under any configured root's EventPath.
func (r *Roots) ContainsEventPath(p string) bool {
	for _, root := range r.roots {
		if p == root.EventPath || strings.HasPrefix(p, root.EventPath+"/") {
			return true
		}
	}
	return false
}

// ToOriginPath translates an event-visible path into its user-visible
// (origin) path, for roots where the two differ (e.g. a container or
// bind-mounted indexing root).
func (r *Roots) ToOriginPath(eventPath string) (string, bool) {
	for _, root := range r.roots {
		if eventPath == root.EventPath {
			return root.OriginPath, true
		}
		if strings.HasPrefix(eventPath, root.EventPath+"/") {
			rest := strings.TrimPrefix(eventPath, root.EventPath)
			return root.OriginPath + rest, true
		}
	}
	return "", false
}
