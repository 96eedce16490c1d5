package errors

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForCLI_EngineError(t *testing.T) {
	// Given: an orchestration error with a hint
	err := OrchestrationError("graph root not found", errors.New("stat /nope: no such file")).
		WithSuggestion("pass the directory that contains pages/ and journals/")

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, cause, hint and code are shown
	assert.Contains(t, out, "Error: graph root not found")
	assert.Contains(t, out, "Cause: stat /nope")
	assert.Contains(t, out, "Hint: pass the directory")
	assert.Contains(t, out, "Code: ERR_601_ORCHESTRATION")
}

func TestFormatForCLI_StandardError(t *testing.T) {
	out := FormatForCLI(errors.New("unexpected"))

	assert.Contains(t, out, "Error: unexpected")
	assert.Contains(t, out, "Code: ERR_901_INTERNAL")
	assert.NotContains(t, out, "Cause:")
}

func TestFormatForCLI_Nil(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs_IncludesCodeAndSortedDetails(t *testing.T) {
	err := MissingParentError("block-2", "block-1")

	attrs := LogAttrs(err)

	byKey := make(map[string]slog.Value)
	var keys []string
	for _, a := range attrs {
		byKey[a.Key] = a.Value
		keys = append(keys, a.Key)
	}
	assert.Equal(t, ErrCodeMissingParent, byKey["error_code"].String())
	assert.Equal(t, "HIERARCHY", byKey["category"].String())
	assert.Equal(t, "block-2", byKey["detail_block_id"].String())
	assert.Equal(t, []string{"detail_block_id", "detail_parent_id"}, keys[len(keys)-2:])
}

func TestLogAttrs_PlainError(t *testing.T) {
	attrs := LogAttrs(errors.New("plain"))

	assert.Len(t, attrs, 1)
	assert.Equal(t, "error", attrs[0].Key)
	assert.Len(t, LogArgs(errors.New("plain")), 1)
	assert.Nil(t, LogAttrs(nil))
}
