// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxdeepin/go-anything/internal/index"
)

type fakeEngine struct {
	docs      map[string]index.Document
	addErr    error
	removeErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: make(map[string]index.Document)}
}

func (f *fakeEngine) Add(path string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.docs[path] = index.Document{FullPath: path}
	return nil
}

func (f *fakeEngine) Remove(path string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.docs, path)
	return nil
}

func (f *fakeEngine) Search(opts index.SearchOptions) ([]index.Document, error) {
	var out []index.Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeEngine) ParallelSearch(opts index.SearchOptions, rules []index.SearchRule) ([]index.Document, error) {
	return f.Search(opts)
}

func TestControllerAddPathFiresSignal(t *testing.T) {
	engine := newFakeEngine()
	c := New(Config{Engine: engine})

	var gotPath string
	var gotSuccess bool
	c.AddPathFinished = func(path string, success bool) {
		gotPath, gotSuccess = path, success
	}

	ok := c.AddPath("/home/u/file.txt")
	require.True(t, ok)
	assert.Equal(t, "/home/u/file.txt", gotPath)
	assert.True(t, gotSuccess)
}

func TestControllerAddPathFailureReportsFalse(t *testing.T) {
	engine := newFakeEngine()
	engine.addErr = assert.AnError
	c := New(Config{Engine: engine})

	ok := c.AddPath("/x")
	assert.False(t, ok)
}

func TestControllerRemovePath(t *testing.T) {
	engine := newFakeEngine()
	_ = engine.Add("/x")
	c := New(Config{Engine: engine})

	assert.True(t, c.RemovePath("/x"))
	_, exists := engine.docs["/x"]
	assert.False(t, exists)
}

func TestControllerCacheDirAndQuit(t *testing.T) {
	engine := newFakeEngine()
	quit := false
	c := New(Config{Engine: engine, CacheDir: "/var/lib/fsindexd/persistent", Quit: func() { quit = true }})

	assert.Equal(t, "/var/lib/fsindexd/persistent", c.CacheDir())
	c.Quit()
	assert.True(t, quit)
}

func TestControllerAutoIndexProperties(t *testing.T) {
	c := New(Config{Engine: newFakeEngine()})

	assert.True(t, c.AutoIndexInternal())
	c.SetAutoIndexInternal(false)
	assert.False(t, c.AutoIndexInternal())

	assert.True(t, c.AutoIndexExternal())
	c.SetAutoIndexExternal(false)
	assert.False(t, c.AutoIndexExternal())
}

func TestControllerLogLevelProperty(t *testing.T) {
	c := New(Config{Engine: newFakeEngine(), LogLevel: "info"})
	assert.Equal(t, "info", c.LogLevel())
	c.SetLogLevel("debug")
	assert.Equal(t, "debug", c.LogLevel())
}
