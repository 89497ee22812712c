// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobspec

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pdiddy/image-tree/pkg/types"
)

// Preset is a named, pre-validated parameter set.
type Preset struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Steps       int     `json:"steps" yaml:"steps"`
	Guidance    float64 `json:"guidance" yaml:"guidance"`
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
}

var presets = map[string]Preset{
	"draft": {
		Name: "draft", Description: "fast low-resolution preview",
		Steps: 4, Guidance: 1.0, Width: 768, Height: 768,
	},
	"standard": {
		Name: "standard", Description: "default square output",
		Steps: 9, Guidance: 1.0, Width: 1536, Height: 1536,
	},
	"high": {
		Name: "high", Description: "more sampling steps at full resolution",
		Steps: 16, Guidance: 1.5, Width: 2048, Height: 2048,
	},
	"portrait": {
		Name: "portrait", Description: "tall 2:3 output",
		Steps: 9, Guidance: 1.0, Width: 1024, Height: 1536,
	},
	"landscape": {
		Name: "landscape", Description: "wide 3:2 output",
		Steps: 9, Guidance: 1.0, Width: 1536, Height: 1024,
	},
}

// Presets returns every preset sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Preset) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ApplyPreset overrides the sampling fields of p with the named preset.
// Prompt and Seed are kept.
func ApplyPreset(name string, p Params) (Params, error) {
	preset, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return p, fmt.Errorf("%w: unknown preset %q", types.ErrConfiguration, name)
	}
	p.Steps = preset.Steps
	p.Guidance = preset.Guidance
	p.Width = preset.Width
	p.Height = preset.Height
	return p, nil
}

// ParseSize parses a "WIDTHxHEIGHT" string such as "1536x1536".
// Bounds are checked by Validate, not here.
func ParseSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: size %q is not WIDTHxHEIGHT", types.ErrConfiguration, s)
	}
	width, err = strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: size %q: bad width", types.ErrConfiguration, s)
	}
	height, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: size %q: bad height", types.ErrConfiguration, s)
	}
	return width, height, nil
}

// FromConfig builds Params from generation config, applying the preset if one
// is named.
func FromConfig(prompt string, cfg types.GenerationConfig) (Params, error) {
	p := Params{
		Prompt:   prompt,
		Steps:    cfg.Steps,
		Guidance: cfg.Guidance,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Seed:     cfg.Seed,
	}
	if cfg.Preset != "" {
		return ApplyPreset(cfg.Preset, p)
	}
	return p, nil
}

// AttemptSeed returns the seed for the given 1-based attempt. A fixed seed
// advances by one per attempt, wrapping within [1, MaxSeed], so a retry never
// resubmits the same job. Zero stays zero and is randomized by Build.
func AttemptSeed(seed int64, attempt int) int64 {
	if seed == 0 || attempt <= 1 {
		return seed
	}
	return (seed-1+int64(attempt-1))%MaxSeed + 1
}
