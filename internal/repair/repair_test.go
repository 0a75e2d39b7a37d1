package repair

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_CleanObject(t *testing.T) {
	got, err := Record(`{"category":"factual","complexity":2}`)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"factual","complexity":2}`, got)
}

func TestRecord_DuplicatedRecord_TakesFirstOnly(t *testing.T) {
	raw := `{"category":"factual","complexity":2}{"category":"factual","complexity":2}`
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"factual","complexity":2}`, got)
}

func TestRecord_DuplicatedDifferentRecords_NeverMerges(t *testing.T) {
	raw := `{"a":1}{"a":2}`
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestRecord_CodeFence(t *testing.T) {
	raw := "```json\n{\"category\":\"comparative\"}\n```"
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"comparative"}`, got)
}

func TestRecord_BareFence(t *testing.T) {
	raw := "```\n{\"ok\":true}\n```"
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestRecord_LeadingProse(t *testing.T) {
	raw := `Here is the classification you asked for: {"category":"factual","complexity":5} Hope that helps!`
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"factual","complexity":5}`, got)
}

func TestRecord_BracesInsideStrings(t *testing.T) {
	raw := `{"statement":"price is {about} $10"}{"statement":"dup"}`
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"statement":"price is {about} $10"}`, got)
}

func TestRecord_EscapedQuotes(t *testing.T) {
	raw := `{"s":"he said \"hi\" {"}` + `garbage`
	got, err := Record(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"he said \"hi\" {"}`, got)
}

func TestRecord_Array(t *testing.T) {
	got, err := Record(`some text ["a","b"] trailing`)
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, got)
}

func TestRecord_Truncated(t *testing.T) {
	_, err := Record(`{"category":"factual","complex`)
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Raw, "factual")
}

func TestRecord_NoJSON(t *testing.T) {
	_, err := Record(`I could not produce a structured answer.`)
	require.Error(t, err)
}

func TestRecord_Empty(t *testing.T) {
	_, err := Record("   \n")
	require.Error(t, err)
}

func TestRecord_Idempotent(t *testing.T) {
	inputs := []string{
		`{"a":1}{"a":1}`,
		"```json\n{\"a\":1}\n```",
		`prose {"a":1} prose`,
	}
	for _, in := range inputs {
		once, err := Record(in)
		require.NoError(t, err)
		twice, err := Record(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestInto(t *testing.T) {
	var out struct {
		Category   string `json:"category"`
		Complexity int    `json:"complexity"`
	}
	err := Into(`{"category":"factual","complexity":2}{"category":"factual","complexity":2}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "factual", out.Category)
	assert.Equal(t, 2, out.Complexity)
}

func TestInto_Malformed(t *testing.T) {
	var out map[string]any
	err := Into("not json at all", &out)
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "not json at all", re.Raw)
}
