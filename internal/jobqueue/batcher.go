// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package jobqueue

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultBatchSize and defaultFlushInterval are spec.md §4.4's defaults:
// live_jobs flushes at 100 entries or every second, whichever comes
// first.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	pendingSliceSize     = 2000
)

// Applier applies one batch of jobs to the index engine, in enqueue
// order (spec.md §4.4 "Worker pool"). Implemented by workerpool.Pool.
type Applier interface {
	Submit(jobs []Job)
}

// ExistenceChecker is the subset of the index engine's contract the idle
// reconciliation drain needs (spec.md §4.4 "Reconciliation").
type ExistenceChecker interface {
	DocumentExists(path string, exact bool) bool
}

// Batcher owns the two queues of spec.md §4.4: live_jobs (fed by the
// event filter) and pending_paths (fed by the reconciler). live_jobs
// always takes priority; pending_paths only drains when live_jobs is
// empty, keeping live-event latency low.
type Batcher struct {
	log     *zap.SugaredLogger
	applier Applier
	checker ExistenceChecker

	batchSize int

	liveMu   sync.Mutex
	live     []Job
	delay    bool // SPEC_FULL.md §C.1 delay/direct mode

	pendingMu sync.Mutex
	pending   []string
}

// New constructs a Batcher. delayMode starts true, matching the original
// daemon's startup default (SPEC_FULL.md §C.1).
func New(log *zap.SugaredLogger, applier Applier, checker ExistenceChecker, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Batcher{
		log:       log,
		applier:   applier,
		checker:   checker,
		batchSize: batchSize,
		delay:     true,
	}
}

// SetDelayMode toggles whether freshly discovered reconciliation paths go
// through the low-priority pending queue (true) or are submitted as live
// jobs directly (false).
func (b *Batcher) SetDelayMode(delay bool) {
	b.liveMu.Lock()
	b.delay = delay
	b.liveMu.Unlock()
}

// Submit enqueues one job onto live_jobs, flushing immediately if the
// batch size threshold is reached (spec.md §4.4).
func (b *Batcher) Submit(job Job) {
	b.liveMu.Lock()
	b.live = append(b.live, job)
	var flushed []Job
	if len(b.live) >= b.batchSize {
		flushed = b.live
		b.live = nil
	}
	b.liveMu.Unlock()

	if flushed != nil {
		b.applier.Submit(flushed)
	}
}

// InsertPendingPaths appends reconciliation-discovered paths to
// pending_paths, or — when not in delay mode — submits them as live Add
// jobs directly (SPEC_FULL.md §C.1).
func (b *Batcher) InsertPendingPaths(paths []string) {
	b.liveMu.Lock()
	delay := b.delay
	b.liveMu.Unlock()

	if !delay {
		for _, p := range paths {
			b.Submit(Job{Kind: Add, Src: p})
		}
		return
	}

	b.pendingMu.Lock()
	b.pending = append(b.pending, paths...)
	b.pendingMu.Unlock()
}

// PendingCount reports the current pending_paths queue depth.
func (b *Batcher) PendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// Run drives the 1 Hz timer of spec.md §4.4: on each tick, flush
// live_jobs if non-empty; otherwise drain one slice of pending_paths,
// applying the existence pre-check of SPEC_FULL.md §C.2 to each path
// before submitting it as an Add job.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drainOnShutdown()
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Batcher) tick() {
	b.liveMu.Lock()
	batch := b.live
	b.live = nil
	b.liveMu.Unlock()

	if len(batch) > 0 {
		b.applier.Submit(batch)
		return
	}

	b.drainPendingSlice()
}

// drainPendingSlice pops up to pendingSliceSize paths and, for each one
// not already indexed and still present on disk, submits an Add job
// (spec.md §4.4 "Reconciliation"; pre-check per SPEC_FULL.md §C.2).
func (b *Batcher) drainPendingSlice() {
	b.pendingMu.Lock()
	n := len(b.pending)
	if n == 0 {
		b.pendingMu.Unlock()
		return
	}
	if n > pendingSliceSize {
		n = pendingSliceSize
	}
	slice := b.pending[:n]
	b.pending = b.pending[n:]
	b.pendingMu.Unlock()

	if b.log != nil && len(slice) > 0 {
		b.log.Debugw("draining pending reconciliation slice", "size", len(slice))
	}

	jobs := make([]Job, 0, len(slice))
	for _, p := range slice {
		if b.checker != nil && b.checker.DocumentExists(p, true) {
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		jobs = append(jobs, Job{Kind: Add, Src: p})
	}
	if len(jobs) > 0 {
		b.applier.Submit(jobs)
	}
}

// drainOnShutdown flushes whatever remains in live_jobs so a clean
// shutdown doesn't silently drop in-flight work (spec.md §5 "Cancellation
// and shutdown").
func (b *Batcher) drainOnShutdown() {
	b.liveMu.Lock()
	batch := b.live
	b.live = nil
	b.liveMu.Unlock()

	if len(batch) > 0 {
		b.applier.Submit(batch)
	}
}
