package taskstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTaskFile = `---
id: TASK-2026-01-01-001
project: proj
title: Example
status: backlog
createdAt: 2026-01-01T00:00:00Z
updatedAt: 2026-01-01T00:00:00Z
lastTransitionAt: 2026-01-01T00:00:00Z
---

## Instructions

Do the thing.

## Guidance

Prefer simplicity.
`

func TestParseTask_ExtractsSections(t *testing.T) {
	task, err := ParseTask([]byte(validTaskFile))
	require.NoError(t, err)
	assert.Equal(t, "TASK-2026-01-01-001", task.ID)
	assert.Equal(t, "Do the thing.", task.Instructions())
	assert.Equal(t, "Prefer simplicity.", task.Guidance())
}

func TestParseTask_MissingClosingFenceIsParseError(t *testing.T) {
	_, err := ParseTask([]byte("---\nid: x\n"))
	assert.Error(t, err)
}

func TestParseTask_MissingOpeningFenceIsParseError(t *testing.T) {
	_, err := ParseTask([]byte("id: x\n---\n"))
	assert.Error(t, err)
}

func TestParseTask_MissingRequiredFieldsIsParseError(t *testing.T) {
	_, err := ParseTask([]byte("---\ntitle: no id or project\n---\n"))
	assert.Error(t, err)
}

func TestSerializeTask_RoundTrips(t *testing.T) {
	original, err := ParseTask([]byte(validTaskFile))
	require.NoError(t, err)

	data, err := SerializeTask(original)
	require.NoError(t, err)

	reparsed, err := ParseTask(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, reparsed.ID)
	assert.Equal(t, original.Instructions(), reparsed.Instructions())
}

func TestContentHash_StableForSameBody(t *testing.T) {
	a, err := ParseTask([]byte(validTaskFile))
	require.NoError(t, err)
	b, err := ParseTask([]byte(validTaskFile))
	require.NoError(t, err)

	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 16)
}
