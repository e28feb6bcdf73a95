// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensSplitsDelimitersAndLowercases(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	tokens := tok.Tokens("Project_Report-Final.docx")
	assert.Contains(t, tokens, "project")
	assert.Contains(t, tokens, "report")
	assert.Contains(t, tokens, "final")
	assert.Contains(t, tokens, "docx")
}

func TestPinyinOnlyEmitsForHanRunes(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	assert.Empty(t, tok.Pinyin("report.docx"))
	assert.NotEmpty(t, tok.Pinyin("报告.docx"))
}

func TestTokensFoldsFullWidthPunctuationAndDigits(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	narrow := tok.Tokens("report(1).txt")
	fullWidth := tok.Tokens("report（1）.txt")

	assert.Equal(t, narrow, fullWidth)
	assert.Contains(t, fullWidth, "report")
	assert.Contains(t, fullWidth, "1")
}

func TestTokensFoldsIdeographicSpace(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	tokens := tok.Tokens("年度　报告.docx") // separated by U+3000 ideographic space
	assert.Contains(t, tokens, "docx")
	assert.NotContains(t, tokens, "年度报告")
}
