// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernelproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "NEW_FILE", ActionNewFile.String())
	assert.Equal(t, "RENAME_FOLDER", ActionRenameFolder.String())
	assert.Equal(t, "UNKNOWN", Action(200).String())
}

func TestIsRenameFromAndTo(t *testing.T) {
	assert.True(t, ActionRenameFromFile.IsRenameFrom())
	assert.True(t, ActionRenameFromFolder.IsRenameFrom())
	assert.False(t, ActionRenameToFile.IsRenameFrom())

	assert.True(t, ActionRenameToFile.IsRenameTo())
	assert.True(t, ActionRenameToFolder.IsRenameTo())
	assert.False(t, ActionRenameFromFile.IsRenameTo())
}

func TestIsMountLifecycle(t *testing.T) {
	assert.True(t, ActionMount.IsMountLifecycle())
	assert.True(t, ActionUnmount.IsMountLifecycle())
	assert.False(t, ActionNewFile.IsMountLifecycle())
}

func TestIsFolder(t *testing.T) {
	assert.True(t, ActionNewFolder.IsFolder())
	assert.True(t, ActionRenameFolder.IsFolder())
	assert.False(t, ActionNewFile.IsFolder())
	assert.False(t, ActionRenameFile.IsFolder())
}
