// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package jobqueue coalesces FullPathEvents into IndexJob batches and
// drains a separate low-priority queue of reconciliation paths (spec.md
// §4.4 "Job batcher").
package jobqueue

import (
	"github.com/linuxdeepin/go-anything/internal/filter"
	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

// Kind is the IndexJob discriminant (spec.md §3).
type Kind int

const (
	Add Kind = iota
	Remove
	Update
)

// Job mirrors spec.md §3's IndexJob: Dst is present iff Kind == Update.
type Job struct {
	Kind Kind
	Src  string
	Dst  string
}

// FromFullPathEvent maps a coalesced kernel event onto exactly one
// IndexJob (MOUNT/UNMOUNT never reach here; the filter consumes them).
func FromFullPathEvent(ev filter.FullPathEvent) Job {
	switch {
	case ev.IsRename():
		return Job{Kind: Update, Src: ev.Src, Dst: ev.Dst}
	case ev.Action == kernelproto.ActionDelFile || ev.Action == kernelproto.ActionDelFolder:
		return Job{Kind: Remove, Src: ev.Src}
	default:
		return Job{Kind: Add, Src: ev.Src}
	}
}
