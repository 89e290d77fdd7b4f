package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, "Draft", StatusDraft)
	assert.Equal(t, "Committing new", StatusCommittingNew)
	assert.Equal(t, "Committing back", StatusCommittingBack)
}

func TestIsCommitStatus(t *testing.T) {
	assert.True(t, IsCommitStatus(StatusCommittingNew))
	assert.True(t, IsCommitStatus(StatusCommittingBack))
	assert.False(t, IsCommitStatus(StatusDraft))
	assert.False(t, IsCommitStatus("committing new"))
	assert.False(t, IsCommitStatus(""))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusDraft))
	assert.True(t, ValidStatus(StatusCommittingBack))
	assert.False(t, ValidStatus("Published"))
}
