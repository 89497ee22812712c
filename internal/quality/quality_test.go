// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/image-tree/internal/advisory"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{"skip accepts regardless of score", Input{Score: 0, Threshold: 7, Attempt: 1, MaxIterations: 5, SkipEvaluation: true}, Accept},
		{"score at threshold accepts", Input{Score: 7, Threshold: 7, Attempt: 1, MaxIterations: 5}, Accept},
		{"below threshold retries", Input{Score: 6.9, Threshold: 7, Attempt: 4, MaxIterations: 5}, Retry},
		{"below threshold on last attempt exhausts", Input{Score: 6.9, Threshold: 7, Attempt: 5, MaxIterations: 5}, Exhausted},
		{"accuracy gate off by default", Input{Score: 8, Accuracy: 1, Threshold: 7, Attempt: 1, MaxIterations: 5}, Accept},
		{"accuracy gate rejects", Input{Score: 8, Accuracy: 5, Threshold: 7, AccuracyThreshold: 6, Attempt: 1, MaxIterations: 5}, Retry},
		{"accuracy gate passes", Input{Score: 8, Accuracy: 6, Threshold: 7, AccuracyThreshold: 6, Attempt: 1, MaxIterations: 5}, Accept},
		{"single iteration budget", Input{Score: 2, Threshold: 7, Attempt: 1, MaxIterations: 1}, Exhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.in))
		})
	}
}

// run feeds scores through the gate the way the orchestrator does and
// returns the final decision, the attempt it happened on, and the best score.
func run(scores []float64, threshold float64, maxIterations int) (Decision, int, float64) {
	var best Best
	for i, s := range scores {
		attempt := i + 1
		best.Offer(Candidate{Score: s, Attempt: attempt})
		d := Decide(Input{Score: s, Threshold: threshold, Attempt: attempt, MaxIterations: maxIterations})
		if d != Retry {
			c, _ := best.Get()
			if d == Accept {
				return d, attempt, s
			}
			return d, attempt, c.Score
		}
	}
	return Retry, len(scores), 0
}

func TestDecide_AcceptsOnThirdAttempt(t *testing.T) {
	d, attempt, score := run([]float64{3, 5, 8}, 7, 5)
	assert.Equal(t, Accept, d)
	assert.Equal(t, 3, attempt)
	assert.Equal(t, 8.0, score)
}

func TestDecide_ExhaustsWithBestScore(t *testing.T) {
	d, attempt, best := run([]float64{3, 4, 5, 6, 6}, 7, 5)
	assert.Equal(t, Exhausted, d)
	assert.Equal(t, 5, attempt)
	assert.Equal(t, 6.0, best)
}

func TestBest_TiesKeepEarliest(t *testing.T) {
	var b Best
	_, ok := b.Get()
	assert.False(t, ok)

	b.Offer(Candidate{Score: 6, Attempt: 4, Prompt: "fourth"})
	b.Offer(Candidate{Score: 6, Attempt: 5, Prompt: "fifth"})
	b.Offer(Candidate{Score: 3, Attempt: 6})

	c, ok := b.Get()
	require.True(t, ok)
	assert.Equal(t, 4, c.Attempt)
	assert.Equal(t, "fourth", c.Prompt)
}

func TestRefine(t *testing.T) {
	t.Run("low accuracy restates original", func(t *testing.T) {
		got := Refine("a cat", "a cat, more fur", advisory.Evaluation{PromptAccuracy: 5, Suggestions: []string{"x"}})
		assert.Equal(t, "a cat, highly detailed, accurate representation", got)
	})
	t.Run("appends at most three suggestions", func(t *testing.T) {
		got := Refine("a cat", "a cat", advisory.Evaluation{PromptAccuracy: 8, Suggestions: []string{"sharper", " ", "warm light", "bokeh", "film grain"}})
		assert.Equal(t, "a cat, sharper, warm light, bokeh", got)
	})
	t.Run("keeps current without suggestions", func(t *testing.T) {
		got := Refine("a cat", "a cat, studio", advisory.Evaluation{PromptAccuracy: 9})
		assert.Equal(t, "a cat, studio", got)
	})
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "exhausted", Exhausted.String())
}
