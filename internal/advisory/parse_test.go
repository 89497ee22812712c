// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/image-tree/pkg/types"
)

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "object list",
			text: `{"keywords": [{"text": "geometric", "type": "visual_style"}, {"text": "circuit"}]}`,
			want: []string{"geometric", "circuit"},
		},
		{
			name: "string list",
			text: `{"keywords": ["geometric", "circuit", "gradient", "typography"]}`,
			want: []string{"geometric", "circuit", "gradient", "typography"},
		},
		{
			name: "bare array",
			text: `["neon", "rain"]`,
			want: []string{"neon", "rain"},
		},
		{
			name: "embedded in prose with fence and trailing comma",
			text: "Here you go:\n```json\n{\"keywords\": [\"fog\", \"lantern\",]}\n```\nEnjoy!",
			want: []string{"fog", "lantern"},
		},
		{
			name: "capped, trimmed and de-duplicated",
			text: `{"keywords": [" a ", "A", "b", "", "c", "d", "e"]}`,
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "control characters removed",
			text: "{\"keywords\": [\"soft\x01 light\"]}",
			want: []string{"soft light"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeywords(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeywords_Invalid(t *testing.T) {
	for _, text := range []string{
		"no json here",
		`{"keywords": []}`,
		`{"keywords": [{"type": "visual_object"}]}`,
		`{"keywords": 42}`,
	} {
		_, err := ParseKeywords(text)
		assert.ErrorIs(t, err, types.ErrAdvisoryInvalidResponse, text)
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		score    float64
		accuracy float64
	}{
		{
			name:     "full document",
			text:     `{"score": 8.5, "feedback": "crisp", "suggestions": ["more contrast"], "defects_found": ["extra finger"], "consistency_issues": ["shadow"], "original_prompt_accuracy": 9}`,
			score:    8.5,
			accuracy: 9,
		},
		{name: "accuracy defaults to score", text: `{"score": 6}`, score: 6, accuracy: 6},
		{name: "percentage score", text: `{"score": 85, "original_prompt_accuracy": 70}`, score: 8.5, accuracy: 7},
		{name: "string score", text: `{"score": "7.5"}`, score: 7.5, accuracy: 7.5},
		{name: "clamped negative", text: `{"score": -3}`, score: 0, accuracy: 0},
		{name: "percentage above 100 clamps", text: `{"score": 150}`, score: 10, accuracy: 10},
		{name: "textual score label", text: "Overall score: 7. Nice colors.", score: 7, accuracy: 7},
		{name: "textual fraction", text: "I would rate this 6.5/10 overall.", score: 6.5, accuracy: 6.5},
		{name: "fraction inside string score", text: `{"score": "8/10"}`, score: 8, accuracy: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvaluation(tt.text)
			require.NoError(t, err)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.InDelta(t, tt.accuracy, got.PromptAccuracy, 1e-9)
		})
	}
}

func TestParseEvaluation_Fields(t *testing.T) {
	got, err := ParseEvaluation(`{"score": 8, "feedback": " crisp ", "suggestions": ["more contrast"], "defects_found": ["extra finger"], "consistency_issues": ["shadow"]}`)
	require.NoError(t, err)
	assert.Equal(t, "crisp", got.Feedback)
	assert.Equal(t, []string{"more contrast"}, got.Suggestions)
	assert.Equal(t, []string{"extra finger", "shadow"}, got.Defects)
}

func TestParseEvaluation_Invalid(t *testing.T) {
	for _, text := range []string{"", "looks great!", `{"feedback": "no score"}`} {
		_, err := ParseEvaluation(text)
		assert.ErrorIs(t, err, types.ErrAdvisoryInvalidResponse, text)
	}
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 7.0, NormalizeScore(7))
	assert.Equal(t, 10.0, NormalizeScore(10))
	assert.Equal(t, 7.0, NormalizeScore(70))
	assert.Equal(t, 0.0, NormalizeScore(-1))
}
