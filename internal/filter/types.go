// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package filter consumes RawEvents, coalesces rename FROM/TO pairs by
// cookie, resolves full paths, and applies the blacklist and fuse.dlnfs
// exclusions (spec.md §4.2).
package filter

import "github.com/linuxdeepin/go-anything/internal/kernelproto"

// FullPathEvent is a RawEvent after mount resolution and rename
// coalescing (spec.md §3). Dst is non-empty iff Action is one of the
// derived rename actions.
type FullPathEvent struct {
	Action kernelproto.Action
	Src    string
	Dst    string // empty unless Action is RenameFile/RenameFolder
}

// IsRename reports whether e represents a coalesced rename.
func (e FullPathEvent) IsRename() bool {
	return e.Action == kernelproto.ActionRenameFile || e.Action == kernelproto.ActionRenameFolder
}
