// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package index

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// maxBackfillDepth bounds the self-healing recursion to a single extra
// round-trip, mirroring the original daemon's continuation predicate
// (SPEC_FULL.md §C.3: "old_results_count == max_count").
const maxBackfillDepth = 1

// SearchOptions configures one query against the engine (spec.md §4.3).
type SearchOptions struct {
	// PathPrefix, when non-empty, restricts hits to documents whose
	// FullPath starts with this exact byte prefix (after trailing-slash
	// normalization).
	PathPrefix string
	// Query is either a whitespace-separated AND term list (Wildcard
	// false) or a single pattern containing '*'/'?' glob wildcards
	// matched against the lowercased file name (Wildcard true).
	Query    string
	Wildcard bool
	Offset   int
	// Limit caps the number of returned hits; 0 means unlimited.
	Limit int
}

// Search runs opts against the merged volatile+persistent index and
// self-heals stale hits: any result whose FullPath no longer exists on
// disk is dropped from the returned page, reported via StaleHook for
// asynchronous removal, and — if dropping those hits left fewer than a
// full page of results and a full page had been requested — backfilled
// with one bounded extra lookup (spec.md §4.3 "Self-healing";
// SPEC_FULL.md §C.3).
func (e *Engine) Search(opts SearchOptions) ([]Document, error) {
	docs, err := e.searchRound(opts, maxBackfillDepth)
	return docs, err
}

func (e *Engine) searchRound(opts SearchOptions, backfillBudget int) ([]Document, error) {
	q, err := e.buildQuery(opts)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	requestSize := limit
	if requestSize <= 0 {
		count, err := e.alias.DocCount()
		if err != nil {
			return nil, fmt.Errorf("index: counting documents: %w", err)
		}
		requestSize = int(count)
		if requestSize == 0 {
			requestSize = 1
		}
	}

	req := bleve.NewSearchRequestOptions(q, requestSize, opts.Offset, false)
	req.Fields = []string{"*"}
	req.SortBy([]string{"-_score", "full_path"})

	res, err := e.alias.Search(req)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	docs := make([]Document, 0, len(res.Hits))
	var stale int
	for _, hit := range res.Hits {
		fullPath, _ := hit.Fields["full_path"].(string)
		if fullPath == "" {
			continue
		}
		if _, err := os.Lstat(fullPath); err != nil {
			stale++
			if e.StaleHook != nil {
				e.StaleHook(fullPath)
			}
			continue
		}
		docs = append(docs, documentFromFields(hit.Fields))
	}

	full := limit > 0 && len(res.Hits) >= requestSize
	if stale > 0 && full && backfillBudget > 0 {
		more, err := e.searchRound(SearchOptions{
			PathPrefix: opts.PathPrefix,
			Query:      opts.Query,
			Wildcard:   opts.Wildcard,
			Offset:     opts.Offset + requestSize,
			Limit:      stale,
		}, backfillBudget-1)
		if err == nil {
			docs = append(docs, more...)
		}
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (e *Engine) buildQuery(opts SearchOptions) (query.Query, error) {
	var clauses []query.Query

	term := strings.TrimSpace(opts.Query)
	if term != "" {
		if opts.Wildcard {
			wq := query.NewWildcardQuery(strings.ToLower(term))
			wq.SetField("file_name")
			clauses = append(clauses, wq)
		} else {
			for _, word := range strings.Fields(strings.ToLower(term)) {
				mq := query.NewMatchQuery(word)
				mq.SetField("tokens")
				clauses = append(clauses, mq)
			}
		}
	}

	if prefix := normalizePath(opts.PathPrefix); prefix != "" {
		pq := query.NewPrefixQuery(prefix)
		pq.SetField("full_path")
		clauses = append(clauses, pq)
	}

	switch len(clauses) {
	case 0:
		return bleve.NewMatchAllQuery(), nil
	case 1:
		return clauses[0], nil
	default:
		return query.NewConjunctionQuery(clauses), nil
	}
}

// ParallelSearch applies a set of caller-supplied predicates against the
// currently matching document set, returning only documents every rule
// accepts (spec.md §6 "parallel_search"; Open Question (b): rules are
// opaque Go predicates rather than a parsed rule language).
type SearchRule func(Document) bool

func (e *Engine) ParallelSearch(opts SearchOptions, rules []SearchRule) ([]Document, error) {
	docs, err := e.Search(opts)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return docs, nil
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		keep := true
		for _, rule := range rules {
			if !rule(d) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out, nil
}

func documentFromFields(fields map[string]interface{}) Document {
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	pinyin := str("pinyin")
	var pinyinTerms []string
	if pinyin != "" {
		pinyinTerms = strings.Fields(pinyin)
	}

	isHidden, _ := fields["is_hidden"].(bool)

	return Document{
		FullPath:      str("full_path"),
		FileName:      str("file_name"),
		ParentDir:     str("parent_dir"),
		FileExt:       str("file_ext"),
		FileType:      str("file_type"),
		ModifyTimeStr: str("modify_time_str"),
		FileSizeStr:   str("file_size_str"),
		Pinyin:        pinyinTerms,
		IsHidden:      isHidden,
	}
}
