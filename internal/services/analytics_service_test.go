package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeStatusCounts(t *testing.T) {
	summary := summarizeStatusCounts([]statusCount{
		{Status: "waiting", Total: 3},
		{Status: "called", Total: 1},
		{Status: "in-progress", Total: 2},
		{Status: "completed", Total: 10},
		{Status: "cancelled", Total: 4},
	})

	assert.Equal(t, 3, summary.Pending)
	assert.Equal(t, 3, summary.InProgress)
	assert.Equal(t, 10, summary.Completed)
	assert.Equal(t, 20, summary.Total)
}

func TestSummarizeStatusCountsEmpty(t *testing.T) {
	summary := summarizeStatusCounts(nil)

	assert.Zero(t, summary.Pending)
	assert.Zero(t, summary.InProgress)
	assert.Zero(t, summary.Completed)
	assert.Zero(t, summary.Total)
}
