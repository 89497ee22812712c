// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality decides whether a generated artifact is good enough, and
// tracks the best artifact across a node's attempts.
package quality

import (
	"strings"

	"github.com/pdiddy/image-tree/internal/advisory"
)

// SkippedScore is recorded for artifacts accepted without evaluation.
const SkippedScore = 8.0

// Decision is the gate's verdict for one attempt.
type Decision int

const (
	Accept Decision = iota
	Retry
	Exhausted
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Retry:
		return "retry"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Input carries everything Decide reads.
type Input struct {
	Score    float64
	Accuracy float64

	Threshold float64

	// AccuracyThreshold gates prompt accuracy as well as score when positive.
	AccuracyThreshold float64

	// Attempt is 1-based.
	Attempt       int
	MaxIterations int

	SkipEvaluation bool
}

// Decide is a pure function of in.
func Decide(in Input) Decision {
	if in.SkipEvaluation {
		return Accept
	}
	if in.Score >= in.Threshold && (in.AccuracyThreshold <= 0 || in.Accuracy >= in.AccuracyThreshold) {
		return Accept
	}
	if in.Attempt < in.MaxIterations {
		return Retry
	}
	return Exhausted
}

// Candidate is one successfully produced artifact.
type Candidate struct {
	Artifact []byte
	Score    float64
	Prompt   string
	Attempt  int
}

// Best keeps the highest-scoring candidate. Ties keep the earliest attempt.
// The zero value is ready to use.
type Best struct {
	cand *Candidate
}

// Offer records c if it beats the current best.
func (b *Best) Offer(c Candidate) {
	if b.cand == nil || c.Score > b.cand.Score {
		b.cand = &c
	}
}

// Get returns the best candidate, if any.
func (b *Best) Get() (Candidate, bool) {
	if b.cand == nil {
		return Candidate{}, false
	}
	return *b.cand, true
}

// LowAccuracy is the prompt accuracy below which Refine re-emphasizes the
// original prompt instead of applying suggestions.
const LowAccuracy = 7.0

const maxSuggestions = 3

// Refine derives the next attempt's prompt from an evaluation. When the
// artifact drifted from the prompt, the original prompt is restated with
// emphasis. Otherwise up to three suggestions are appended to the current
// prompt. Without suggestions the current prompt is kept.
func Refine(original, current string, eval advisory.Evaluation) string {
	if eval.PromptAccuracy < LowAccuracy {
		return original + ", highly detailed, accurate representation"
	}

	var parts []string
	for _, s := range eval.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, s)
		if len(parts) == maxSuggestions {
			break
		}
	}
	if len(parts) == 0 {
		return current
	}
	return current + ", " + strings.Join(parts, ", ")
}
