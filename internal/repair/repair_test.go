package repair

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_TrailingComma(t *testing.T) {
	repaired, err := Repair(`{"a":1,"b":2,}`)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(repaired), &got))
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
}

func TestRepair_UnquotedKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single key", `{a:1}`, `{"a":1}`},
		{"sibling keys", `{a:1,b:2}`, `{"a":1,"b":2}`},
		{"nested", `{outer:{inner:1}}`, `{"outer":{"inner":1}}`},
		{"underscore key", `{_private:true}`, `{"_private":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired, err := Repair(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, repaired)
		})
	}
}

func TestRepair_SingleQuotes(t *testing.T) {
	repaired, err := Repair(`{'a':1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, repaired)
}

func TestRepair_SingleQuotesMixedWithDouble(t *testing.T) {
	// File already contains double quotes, so the whole-file quote swap must
	// not fire even though a stray single quote is present inside a value.
	repaired, err := Repair(`{"a": "it's fine"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "it's fine"}`, repaired)
}

func TestRepair_MissingComma(t *testing.T) {
	input := "{\n  \"a\": 1\n  \"b\": 2\n}"
	repaired, err := Repair(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, repaired)
}

func TestRepair_AllPassesTogether(t *testing.T) {
	input := "{\n  \"a\": 1\n  \"b\": [1,2,],\n}"
	repaired, err := Repair(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":[1,2]}`, repaired)
}

func TestRepair_Unrepairable(t *testing.T) {
	_, err := Repair(`{"a": "unterminated`)
	require.Error(t, err)

	var unrep *UnrepairableError
	require.True(t, errors.As(err, &unrep))
	assert.NotEmpty(t, unrep.Window)
	assert.Error(t, unrep.Err)
}

func TestRepair_ValidInputPassesThrough(t *testing.T) {
	repaired, err := Repair(`{"a": 1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, repaired)
}

func TestWindow(t *testing.T) {
	text := "0123456789abcdefghij"

	tests := []struct {
		name   string
		offset int64
		radius int
		want   string
	}{
		{"middle", 10, 3, "789abc"},
		{"clamped at start", 1, 5, "012345"},
		{"clamped at end", 19, 5, "efghij"},
		{"radius covers all", 10, 100, text},
		{"zero radius", 10, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Window(text, tt.offset, tt.radius))
		})
	}
}

func TestWindow_EmptyText(t *testing.T) {
	assert.Empty(t, Window("", 0, 10))
}
