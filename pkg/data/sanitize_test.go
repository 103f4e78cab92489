package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "think block", in: "<think>hmm {no}</think>{\"a\": 1}", want: `{"a": 1}`},
		{name: "fenced", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "fenced with prose", in: "Sure:\n```json\n{\"a\": 1}\n```\nDone.", want: `{"a": 1}`},
		{name: "surrounding prose", in: `The answer is {"a": 1} I think`, want: `{"a": 1}`},
		{name: "single quotes", in: `{'a': 'x', 'b': True, 'c': None}`, want: `{"a":"x","b":true,"c":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeAnswer(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestSanitizeAnswer_NoJSON(t *testing.T) {
	_, err := SanitizeAnswer("no json here")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = SanitizeAnswer("{broken")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractJSON_Lenient(t *testing.T) {
	var got struct {
		Facts []string `json:"facts"`
		Ok    bool     `json:"ok"`
	}
	err := ExtractJSON(`{'facts': ['Alice lives in Paris.', "it's sunny",], 'ok': True}`, &got)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice lives in Paris.", "it's sunny"}, got.Facts)
	assert.True(t, got.Ok)
}

func TestExtractList(t *testing.T) {
	got, err := ExtractList("<think>plan</think>Here: [\"list files\", \"read README\"]")
	require.NoError(t, err)
	assert.Equal(t, []string{"list files", "read README"}, got)

	_, err = ExtractList("nothing")
	assert.Error(t, err)
}

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, "42", CleanOutput(`<think>working</think> \boxed{42}`))
	assert.Equal(t, "", CleanOutput(""))
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "city: Paris, name: Alice", Flatten(map[string]any{"name": "Alice", "city": "Paris"}))
	assert.Equal(t, "", Flatten(map[string]any{}))
}
