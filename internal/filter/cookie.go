// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package filter

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultCookieTTL bounds how long a pending RENAME_FROM_* waits for its
// matching RENAME_TO_* before being evicted (spec.md §4.2 "Cookie
// eviction policy": 5 seconds).
const defaultCookieTTL = 5 * time.Second

// defaultCookieCapacity caps the number of in-flight cookies under an
// event flood (spec.md §9: "Strategy: bounded LRU (max entries, max
// age)").
const defaultCookieCapacity = 4096

// cookieTable maps a rename cookie to its pending source path. Owned
// exclusively by the filter goroutine; not safe for concurrent use from
// other goroutines (spec.md §5 "Shared resources": "Cookie table: owned
// by the filter; no sharing").
type cookieTable struct {
	lru *expirable.LRU[uint32, string]
}

func newCookieTable() *cookieTable {
	return &cookieTable{
		lru: expirable.NewLRU[uint32, string](defaultCookieCapacity, nil, defaultCookieTTL),
	}
}

// put records a pending RENAME_FROM_* source path for cookie, overwriting
// any previous entry (RenameCookieTable invariant: at most one entry per
// cookie, spec.md §3).
func (c *cookieTable) put(cookie uint32, src string) {
	c.lru.Add(cookie, src)
}

// takeMatch looks up and removes the pending source for cookie, as done
// when a RENAME_TO_* arrives (spec.md §4.2 step 3).
func (c *cookieTable) takeMatch(cookie uint32) (string, bool) {
	src, ok := c.lru.Get(cookie)
	if !ok {
		return "", false
	}
	c.lru.Remove(cookie)
	return src, true
}
