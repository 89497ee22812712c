// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/image-tree/pkg/types"
)

// MaxKeywords caps the keywords returned by one extraction.
const MaxKeywords = 4

var (
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
	codeFence      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

	scoreLabel    = regexp.MustCompile(`(?i)\b(?:overall\s+)?score\s*[:=]?\s*(\d+(?:\.\d+)?)`)
	scoreFraction = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10\b`)
)

// flexFloat decodes a JSON number or a numeric string.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	f.value, f.set = v, true
	return nil
}

// flexStrings decodes a list whose elements are strings or objects with a
// "text" (or "name") field, or a single string.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single != "" {
			*f = []string{single}
		}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Text string `json:"text"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err == nil {
			if obj.Text != "" {
				out = append(out, obj.Text)
			} else if obj.Name != "" {
				out = append(out, obj.Name)
			}
		}
	}
	*f = out
	return nil
}

// extractJSON locates the JSON document inside free model output: a fenced
// block if present, else the outermost object, else the outermost array.
// Control characters and trailing commas are removed.
func extractJSON(text string) (string, bool) {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	doc, ok := outermost(text, '{', '}')
	if !ok {
		doc, ok = outermost(text, '[', ']')
	}
	if !ok {
		return "", false
	}
	doc = controlChars.ReplaceAllString(doc, "")
	doc = trailingCommas.ReplaceAllString(doc, "$1")
	return doc, true
}

func outermost(text string, first, last byte) (string, bool) {
	start := strings.IndexByte(text, first)
	end := strings.LastIndexByte(text, last)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseKeywords reads keywords from model output. It accepts
// {"keywords": [...]} or a bare array, with string or {"text": ...}
// elements. The result is trimmed, de-duplicated and capped at MaxKeywords.
func ParseKeywords(text string) ([]string, error) {
	doc, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON in keyword response", types.ErrAdvisoryInvalidResponse)
	}

	var list flexStrings
	if strings.HasPrefix(doc, "{") {
		var obj struct {
			Keywords flexStrings `json:"keywords"`
		}
		if err := json.Unmarshal([]byte(doc), &obj); err != nil {
			return nil, fmt.Errorf("%w: decoding keywords: %v", types.ErrAdvisoryInvalidResponse, err)
		}
		list = obj.Keywords
	} else if err := json.Unmarshal([]byte(doc), &list); err != nil {
		return nil, fmt.Errorf("%w: decoding keywords: %v", types.ErrAdvisoryInvalidResponse, err)
	}

	keywords := NormalizeKeywords(list)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: keyword list is empty", types.ErrAdvisoryInvalidResponse)
	}
	return keywords, nil
}

// NormalizeKeywords trims, drops empties and case-insensitive duplicates,
// and caps the list at MaxKeywords.
func NormalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, MaxKeywords)
	for _, k := range in {
		k = strings.Trim(strings.TrimSpace(k), `"'.,;`)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

type evaluationDoc struct {
	Score             flexFloat   `json:"score"`
	Feedback          string      `json:"feedback"`
	Suggestions       flexStrings `json:"suggestions"`
	Defects           flexStrings `json:"defects_found"`
	ConsistencyIssues flexStrings `json:"consistency_issues"`
	PromptAccuracy    flexFloat   `json:"original_prompt_accuracy"`
}

// ParseEvaluation reads an evaluation from model output. Structured JSON is
// preferred; otherwise a textual score ("score: 7", "7/10") is accepted.
// Prompt accuracy defaults to the score when absent.
func ParseEvaluation(text string) (Evaluation, error) {
	if doc, ok := extractJSON(text); ok && strings.HasPrefix(doc, "{") {
		var d evaluationDoc
		if err := json.Unmarshal([]byte(doc), &d); err == nil && d.Score.set {
			score := NormalizeScore(d.Score.value)
			accuracy := score
			if d.PromptAccuracy.set {
				accuracy = NormalizeScore(d.PromptAccuracy.value)
			}
			return Evaluation{
				Score:          score,
				PromptAccuracy: accuracy,
				Feedback:       strings.TrimSpace(d.Feedback),
				Suggestions:    []string(d.Suggestions),
				Defects:        append([]string(d.Defects), d.ConsistencyIssues...),
			}, nil
		}
	}

	for _, re := range []*regexp.Regexp{scoreLabel, scoreFraction} {
		if m := re.FindStringSubmatch(text); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			score := NormalizeScore(v)
			return Evaluation{Score: score, PromptAccuracy: score, Feedback: strings.TrimSpace(text)}, nil
		}
	}

	return Evaluation{}, fmt.Errorf("%w: no score in evaluation response", types.ErrAdvisoryInvalidResponse)
}

// NormalizeScore maps v onto [0, 10]. Values above 10 are read as
// percentages.
func NormalizeScore(v float64) float64 {
	if v > 10 {
		v /= 10
	}
	return max(0, min(10, v))
}
