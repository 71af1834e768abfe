package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PlainAndFenced(t *testing.T) {
	plain := Decode[Review](`{"approved": true, "feedback": ""}`)
	require.True(t, plain.OK)
	assert.True(t, plain.Value.Approved)

	fenced := Decode[Review]("```json\n{\"approved\": false, \"feedback\": \"fix the era\"}\n```")
	require.True(t, fenced.OK, fenced.Err)
	assert.False(t, fenced.Value.Approved)
	assert.Equal(t, "fix the era", fenced.Value.Feedback)

	for _, raw := range []string{
		"```json {\"approved\": true}```",
		"```{\"approved\": true}```",
		"  ```JSON\r\n{\"approved\": true}```  ",
	} {
		inline := Decode[Review](raw)
		require.True(t, inline.OK, "raw=%q err=%v", raw, inline.Err)
		assert.True(t, inline.Value.Approved)
	}
}

func TestDecode_FailuresAreSentinels(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", `{"approved": "maybe"}`, "```\n```"} {
		got := Decode[Review](raw)
		assert.False(t, got.OK, "raw=%q", raw)
		assert.Error(t, got.Err)
		assert.False(t, got.Value.Approved)
	}
}

func TestFlexText(t *testing.T) {
	got := Decode[Brief](`{"briefing_theme": "Quiet Markets", "relevant_data_points": {"nodes": ["Institutions"]}}`)
	require.True(t, got.OK, got.Err)
	assert.Equal(t, "Quiet Markets", got.Value.Theme)
	assert.Equal(t, `{"nodes":["Institutions"]}`, got.Value.RelevantPoints.String())

	got = Decode[Brief](`{"briefing_theme": "x", "relevant_data_points": "plain"}`)
	require.True(t, got.OK)
	assert.Equal(t, "plain", got.Value.RelevantPoints.String())
}

func TestCleanText(t *testing.T) {
	s, err := CleanText("  an idea \n")
	require.NoError(t, err)
	assert.Equal(t, "an idea", s)

	_, err = CleanText(" \n ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
