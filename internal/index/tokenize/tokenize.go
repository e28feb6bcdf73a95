// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package tokenize implements the Chinese-aware tokenization contract of
// spec.md §4.3: file names are split on delimiters, Han runs are
// segmented with a dictionary-driven method (character-level unigram with
// HMM-backed OOV recovery), and a pinyin romanization term is generated
// per document so romanized queries hit the original Han document.
//
// Neither library here appears in any example repo's go.mod — no pack
// example ships a Han segmenter or a pinyin table — so both are named,
// not grounded, per the exception carved out for concerns the corpus
// doesn't cover (DESIGN.md, SPEC_FULL.md §B).
package tokenize

import (
	"strings"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Tokenizer splits a file name into lowercased search terms, plus a
// separate pinyin term list, per spec.md §4.3.
type Tokenizer struct {
	seg    gse.Segmenter
	lower  cases.Caser
	pyArgs pinyin.Args
}

// New loads gse's bundled dictionary (character-level unigram data plus
// the HMM model for out-of-vocabulary recovery) once at construction.
func New() (*Tokenizer, error) {
	t := &Tokenizer{lower: cases.Lower(language.Und)}
	if err := t.seg.LoadDict(); err != nil {
		return nil, err
	}
	t.pyArgs = pinyin.NewArgs()
	return t, nil
}

// Tokens splits name into search terms: delimiter-separated runs, with
// Han-script runs further segmented by the dictionary/HMM cutter
// (spec.md §4.3 "The tokenizer splits by delimiters and further segments
// Han runs"). All tokens are lowercased.
func (t *Tokenizer) Tokens(name string) []string {
	name = foldWidth(name)

	var tokens []string
	for _, field := range splitDelimiters(name) {
		if field == "" {
			continue
		}
		if hasHan(field) {
			tokens = append(tokens, t.seg.Cut(field, true)...)
		} else {
			tokens = append(tokens, field)
		}
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		out = append(out, t.lower.String(tok))
	}
	return out
}

// Pinyin returns one romanization term per Han character in name, without
// tone marks, returned as separate syllable tokens suitable for AND-style
// matching against a romanized query (spec.md "Document model": "pinyin
// (Hanzi→pinyin index terms)").
func (t *Tokenizer) Pinyin(name string) []string {
	var out []string
	for _, r := range name {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		syllables := pinyin.SinglePinyin(r, t.pyArgs)
		out = append(out, syllables...)
	}
	return out
}

// foldWidth normalizes full-width/half-width variants (common in Chinese
// file names: fullwidth Latin letters and digits, fullwidth punctuation
// like "（" "）" "，") to their canonical narrow form before delimiter
// splitting, so "report（1）.txt" tokenizes the same as "report(1).txt".
// The ideographic space U+3000 is folded separately since it falls
// outside the Halfwidth/Fullwidth Forms block width.Fold covers.
func foldWidth(s string) string {
	s = strings.ReplaceAll(s, "　", " ")
	folded, _, err := transform.String(width.Fold, s)
	if err != nil {
		return norm.NFC.String(s)
	}
	return norm.NFC.String(folded)
}

// splitDelimiters breaks a file name on common path/word separators
// before Han segmentation is attempted on each remaining field.
func splitDelimiters(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']', ',':
			return true
		default:
			return false
		}
	})
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
