package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/inquiry-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0e8dd9a2-1111-2222-3333-444455556666",
			Query:     model.Query{Text: "best price for Sony WH-1000XM5 noise cancelling headphones"},
			Status:    model.RunStatusDone,
			CreatedAt: created,
			UpdatedAt: created.Add(42 * time.Second),
			Result: &model.RunResult{
				Quality: &model.QualityReport{Grade: model.GradeB},
			},
		},
		{
			ID:        "ffffffff-0000-0000-0000-000000000000",
			Query:     model.Query{Text: "short"},
			Status:    model.RunStatusFailed,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var b strings.Builder
	formatRunsList(&b, runs)
	out := b.String()

	assert.Contains(t, out, "0e8dd9a2")
	assert.NotContains(t, out, "0e8dd9a2-1111", "IDs are truncated")
	assert.Contains(t, out, "best price for Sony")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "headphones", "long queries are truncated")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "B")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "failed")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abc"))
	assert.Equal(t, "short", truncateID("short"))
}
