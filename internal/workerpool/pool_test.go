// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxdeepin/go-anything/internal/jobqueue"
)

type fakeEngine struct {
	mu      sync.Mutex
	added   []string
	removed []string
	failAdd map[string]bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failAdd: make(map[string]bool)}
}

func (f *fakeEngine) Add(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd[path] {
		return assertError{"boom"}
	}
	f.added = append(f.added, path)
	return nil
}

func (f *fakeEngine) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeEngine) Update(src, dst string) error {
	return nil
}

func (f *fakeEngine) snapshot() (added, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...), append([]string(nil), f.removed...)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoolAppliesJobsInBatch(t *testing.T) {
	engine := newFakeEngine()
	pool := New(nil, engine, 2)

	pool.Submit([]jobqueue.Job{
		{Kind: jobqueue.Add, Src: "/a"},
		{Kind: jobqueue.Remove, Src: "/b"},
	})

	waitFor(t, func() bool {
		added, removed := engine.snapshot()
		return len(added) == 1 && len(removed) == 1
	})

	added, removed := engine.snapshot()
	assert.Equal(t, []string{"/a"}, added)
	assert.Equal(t, []string{"/b"}, removed)
}

func TestPoolSkipsFailingJobAndContinuesBatch(t *testing.T) {
	engine := newFakeEngine()
	engine.failAdd["/bad"] = true
	pool := New(nil, engine, 1)

	pool.Submit([]jobqueue.Job{
		{Kind: jobqueue.Add, Src: "/bad"},
		{Kind: jobqueue.Add, Src: "/good"},
	})

	waitFor(t, func() bool {
		added, _ := engine.snapshot()
		return len(added) == 1
	})

	added, _ := engine.snapshot()
	assert.Equal(t, []string{"/good"}, added)
}

func TestShutdownWaitsForInFlightBatch(t *testing.T) {
	engine := newFakeEngine()
	pool := New(nil, engine, 1)
	pool.Submit([]jobqueue.Job{{Kind: jobqueue.Add, Src: "/a"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	added, _ := engine.snapshot()
	require.Equal(t, []string{"/a"}, added)
}
