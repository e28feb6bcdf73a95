// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package index implements the persistent, concurrently-writable
// full-text index over path fragments of spec.md §4.3.
package index

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Document mirrors spec.md §3's IndexDocument. FullPath is the stored
// identity: two documents with the same FullPath must never coexist.
type Document struct {
	FullPath      string
	FileName      string
	ParentDir     string
	FileExt       string
	FileType      string
	ModifyTimeStr string
	FileSizeStr   string
	Pinyin        []string
	IsHidden      bool
}

// bleveDoc is the flattened shape actually handed to bleve.Index.Index.
// Tokens and Pinyin are pre-joined strings so a plain text-field analyzer
// (tokenizer + lowercase, no CJK-aware bleve plugin required) is enough
// to make both ASCII substring and Han/pinyin queries hit — the Han
// segmentation and romanization happen in internal/index/tokenize before
// the document ever reaches bleve.
type bleveDoc struct {
	FullPath      string `json:"full_path"`
	FileName      string `json:"file_name"`
	Tokens        string `json:"tokens"`
	Pinyin        string `json:"pinyin"`
	ParentDir     string `json:"parent_dir"`
	FileExt       string `json:"file_ext"`
	FileType      string `json:"file_type"`
	ModifyTimeStr string `json:"modify_time_str"`
	FileSizeStr   string `json:"file_size_str"`
	IsHidden      bool   `json:"is_hidden"`
}

// buildDocument derives a Document from an absolute path's filesystem
// metadata and the configured extension->type mapping.
func buildDocument(fullPath string, info interface {
	ModTime() time.Time
	Size() int64
}, typeMapping map[string]string) Document {
	fullPath = strings.TrimSuffix(fullPath, "/")
	if fullPath == "" {
		fullPath = "/"
	}

	name := filepath.Base(fullPath)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	return Document{
		FullPath:      fullPath,
		FileName:      name,
		ParentDir:     parentDir(fullPath),
		FileExt:       ext,
		FileType:      typeMapping[strings.ToLower(ext)],
		ModifyTimeStr: strconv.FormatInt(info.ModTime().Unix(), 10),
		FileSizeStr:   strconv.FormatInt(info.Size(), 10),
		IsHidden:      strings.HasPrefix(name, "."),
	}
}

func parentDir(fullPath string) string {
	dir := filepath.Dir(fullPath)
	if dir == "." {
		return "/"
	}
	return dir
}
