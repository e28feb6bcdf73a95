// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config loads the event_handler_config record (spec.md §3). It
// is the only configuration surface the core consumes; everything else
// (IPC transport, packaging, GUI) is out of scope per spec.md §1.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/DataDog/viper"
)

// IndexingRoot is a prefix-anchored absolute path under which files are
// eligible for indexing. OriginPath and EventPath differ when the
// event-visible root is not the user-visible one (container, bind mount).
type IndexingRoot struct {
	OriginPath string `mapstructure:"origin_path"`
	EventPath  string `mapstructure:"event_path"`
}

// EventHandlerConfig mirrors spec.md §3's `event_handler_config` record.
type EventHandlerConfig struct {
	PersistentIndexDir string `mapstructure:"persistent_index_dir"`
	VolatileIndexDir   string `mapstructure:"volatile_index_dir"`
	ThreadPoolSize     int    `mapstructure:"thread_pool_size"`

	BlacklistPaths []string       `mapstructure:"blacklist_paths"`
	IndexingPaths  []IndexingRoot `mapstructure:"indexing_paths"`

	FileTypeMapping map[string]string `mapstructure:"file_type_mapping"`

	CommitVolatileIndexTimeoutMS   int64 `mapstructure:"commit_volatile_index_timeout_ms"`
	CommitPersistentIndexTimeoutMS int64 `mapstructure:"commit_persistent_index_timeout_ms"`
}

// CommitVolatileIndexTimeout and CommitPersistentIndexTimeout convert the
// millisecond fields into time.Duration for callers.
func (c EventHandlerConfig) CommitVolatileIndexTimeout() time.Duration {
	return time.Duration(c.CommitVolatileIndexTimeoutMS) * time.Millisecond
}

func (c EventHandlerConfig) CommitPersistentIndexTimeout() time.Duration {
	return time.Duration(c.CommitPersistentIndexTimeoutMS) * time.Millisecond
}

// defaultThreadPoolSize follows the original daemon's sizing heuristic
// (base_event_handler.cpp: hardware_concurrency() - 3, floor 1), adopted
// per SPEC_FULL.md §C.7.
func defaultThreadPoolSize() int {
	n := runtime.NumCPU() - 3
	if n < 1 {
		n = 1
	}
	return n
}

// Defaults returns the built-in configuration used when no config file is
// present (spec.md §7 "Configuration absent: use built-in defaults, emit
// warning").
func Defaults() EventHandlerConfig {
	return EventHandlerConfig{
		PersistentIndexDir: "/var/lib/fsindexd/persistent",
		VolatileIndexDir:   "/var/lib/fsindexd/volatile",
		ThreadPoolSize:     defaultThreadPoolSize(),
		BlacklistPaths:     []string{"/proc", "/sys", "/dev", "/run", "/tmp"},
		IndexingPaths: []IndexingRoot{
			{OriginPath: "/home", EventPath: "/home"},
		},
		FileTypeMapping:                map[string]string{},
		CommitVolatileIndexTimeoutMS:   2000,
		CommitPersistentIndexTimeoutMS: 30000,
	}
}

// Load reads path (a YAML file) into an EventHandlerConfig, overlaying it
// on top of Defaults(). A missing file is not an error: the caller gets
// Defaults() back along with a sentinel so it can log a warning, matching
// spec.md §7's policy for absent configuration.
func Load(path string) (EventHandlerConfig, error) {
	cfg := Defaults()

	// viper.SetConfigFile bypasses its search-path logic, so a missing
	// file at an explicit path surfaces as a plain os.ErrNotExist rather
	// than viper.ConfigFileNotFoundError; check for it directly so both
	// paths funnel into the same "use defaults" outcome (spec.md §7).
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, ErrConfigAbsent
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FSINDEXD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return cfg, ErrConfigAbsent
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config %s: %w", path, err)
	}

	return cfg, nil
}

// ErrConfigAbsent is returned (alongside valid Defaults()) when the
// requested config file does not exist.
var ErrConfigAbsent = fmt.Errorf("config file not found, using defaults")
