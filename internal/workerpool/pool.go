// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package workerpool implements the fixed-size worker pool of spec.md
// §4.4: each worker pulls a batch and applies its jobs sequentially
// against the index engine, preserving within-batch order while making
// no promise about ordering across batches (spec.md §4.4 "Worker pool").
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/jobqueue"
)

// Engine is the subset of the index engine's contract the pool drives
// (spec.md §4.3).
type Engine interface {
	Add(path string) error
	Remove(path string) error
	Update(src, dst string) error
}

// queueDepth bounds how many pending batches may be buffered before
// Submit blocks, providing natural backpressure onto the batcher.
const queueDepth = 256

// Pool is a fixed-size set of workers draining a shared batch channel.
type Pool struct {
	log    *zap.SugaredLogger
	engine Engine

	batches chan []jobqueue.Job
	wg      sync.WaitGroup
}

// New constructs a Pool with size workers (spec.md §3 config field
// thread_pool_size; ≥1 per spec.md §5).
func New(log *zap.SugaredLogger, engine Engine, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		log:     log,
		engine:  engine,
		batches: make(chan []jobqueue.Job, queueDepth),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit hands one batch to the pool. Workers apply its jobs in enqueue
// order; jobqueue.Batcher is the only caller (spec.md §4.4).
func (p *Pool) Submit(jobs []jobqueue.Job) {
	if len(jobs) == 0 {
		return
	}
	p.batches <- jobs
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for batch := range p.batches {
		for _, job := range batch {
			if err := p.apply(job); err != nil && p.log != nil {
				// spec.md §7 "Index write failure": log, skip the single
				// job, continue the batch.
				p.log.Warnw("index write failed, skipping job", "kind", job.Kind, "src", job.Src, "error", err)
			}
		}
	}
}

func (p *Pool) apply(job jobqueue.Job) error {
	switch job.Kind {
	case jobqueue.Add:
		return p.engine.Add(job.Src)
	case jobqueue.Remove:
		return p.engine.Remove(job.Src)
	case jobqueue.Update:
		return p.engine.Update(job.Src, job.Dst)
	default:
		return fmt.Errorf("workerpool: unknown job kind %d", job.Kind)
	}
}

// Shutdown closes the batch channel and blocks until every worker has
// drained its in-flight batch (spec.md §5 "wait for worker pool to
// complete in-flight batches"). ctx is only used to bound the wait; the
// shutdown itself is best-effort with no artificial timeout per spec.md
// §5, so passing context.Background() is typical.
func (p *Pool) Shutdown(ctx context.Context) {
	close(p.batches)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
