// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobspec turns generation parameters into the workflow graph the
// synthesis backend executes.
//
// The graph follows the backend's prompt format: a map from node id to a
// node carrying a class type and its inputs. Links between nodes are encoded
// as [source id, output index] pairs. Only the generation-relevant inputs are
// populated from Params; every other value comes from types.BackendModels
// and is passed through untouched.
package jobspec

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pdiddy/image-tree/pkg/types"
)

// Dimension bounds enforced by Validate.
const (
	MinDimension = 256
	MaxDimension = 4096
)

// MaxSeed is the largest seed the sampler accepts.
const MaxSeed = 1<<32 - 1

// Workflow node ids. The save node is the one whose output carries the artifact.
const (
	nodeCLIP       = "39"
	nodeVAE        = "40"
	nodeLatent     = "41"
	nodeZeroOut    = "42"
	nodeDecode     = "43"
	nodeSampler    = "44"
	nodeTextEncode = "45"
	nodeUNET       = "46"
	nodeSampling   = "47"
	NodeSave       = "9"
)

// Params holds the generation-relevant inputs of one job.
type Params struct {
	Prompt   string
	Steps    int
	Guidance float64
	Width    int
	Height   int

	// Seed is used verbatim when non-zero. Zero draws a random seed in
	// [1, MaxSeed] at build time.
	Seed int64
}

// Node is one workflow graph node.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Spec is a built job specification.
type Spec struct {
	// Graph is the workflow document submitted to the backend.
	Graph map[string]Node

	// Seed is the seed actually used, after randomization.
	Seed int64

	// FilenamePrefix is the SaveImage prefix.
	FilenamePrefix string
}

// Builder builds specs against a fixed set of backend model names.
type Builder struct {
	models types.BackendModels

	// seedFn draws a random seed; replaced in tests.
	seedFn func() int64
}

// DefaultModels returns the model names used when config leaves them empty.
func DefaultModels() types.BackendModels {
	return types.BackendModels{
		CLIP:      "qwen_3_4b.safetensors",
		CLIPType:  "lumina2",
		VAE:       "ae.safetensors",
		UNET:      "z_image_turbo_bf16.safetensors",
		Sampler:   "res_multistep",
		Scheduler: "simple",
	}
}

// NewBuilder returns a Builder. Empty model fields fall back to DefaultModels.
func NewBuilder(models types.BackendModels) *Builder {
	d := DefaultModels()
	if models.CLIP == "" {
		models.CLIP = d.CLIP
	}
	if models.CLIPType == "" {
		models.CLIPType = d.CLIPType
	}
	if models.VAE == "" {
		models.VAE = d.VAE
	}
	if models.UNET == "" {
		models.UNET = d.UNET
	}
	if models.Sampler == "" {
		models.Sampler = d.Sampler
	}
	if models.Scheduler == "" {
		models.Scheduler = d.Scheduler
	}
	return &Builder{
		models: models,
		seedFn: func() int64 { return rand.Int64N(MaxSeed) + 1 },
	}
}

// Validate checks p without clamping. All failures wrap types.ErrConfiguration.
func Validate(p Params) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", types.ErrConfiguration)
	}
	if p.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", types.ErrConfiguration, p.Steps)
	}
	if p.Guidance <= 0 {
		return fmt.Errorf("%w: guidance must be positive, got %g", types.ErrConfiguration, p.Guidance)
	}
	if p.Width < MinDimension || p.Width > MaxDimension {
		return fmt.Errorf("%w: width %d outside [%d, %d]", types.ErrConfiguration, p.Width, MinDimension, MaxDimension)
	}
	if p.Height < MinDimension || p.Height > MaxDimension {
		return fmt.Errorf("%w: height %d outside [%d, %d]", types.ErrConfiguration, p.Height, MinDimension, MaxDimension)
	}
	if p.Seed < 0 || p.Seed > MaxSeed {
		return fmt.Errorf("%w: seed %d outside [0, %d]", types.ErrConfiguration, p.Seed, int64(MaxSeed))
	}
	return nil
}

// Build validates p and returns the workflow graph for it.
func (b *Builder) Build(p Params) (Spec, error) {
	if err := Validate(p); err != nil {
		return Spec{}, err
	}

	seed := p.Seed
	if seed == 0 {
		seed = b.seedFn()
	}
	prefix := fmt.Sprintf("gen_%d", seed)

	graph := map[string]Node{
		nodeCLIP: {
			ClassType: "CLIPLoader",
			Inputs: map[string]any{
				"clip_name": b.models.CLIP,
				"type":      b.models.CLIPType,
				"device":    "default",
			},
		},
		nodeVAE: {
			ClassType: "VAELoader",
			Inputs:    map[string]any{"vae_name": b.models.VAE},
		},
		nodeLatent: {
			ClassType: "EmptySD3LatentImage",
			Inputs: map[string]any{
				"width":      p.Width,
				"height":     p.Height,
				"batch_size": 1,
			},
		},
		nodeZeroOut: {
			ClassType: "ConditioningZeroOut",
			Inputs:    map[string]any{"conditioning": link(nodeTextEncode)},
		},
		nodeDecode: {
			ClassType: "VAEDecode",
			Inputs: map[string]any{
				"samples": link(nodeSampler),
				"vae":     link(nodeVAE),
			},
		},
		nodeSampler: {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         seed,
				"steps":        p.Steps,
				"cfg":          p.Guidance,
				"sampler_name": b.models.Sampler,
				"scheduler":    b.models.Scheduler,
				"denoise":      1,
				"model":        link(nodeSampling),
				"positive":     link(nodeTextEncode),
				"negative":     link(nodeZeroOut),
				"latent_image": link(nodeLatent),
			},
		},
		nodeTextEncode: {
			ClassType: "CLIPTextEncode",
			Inputs: map[string]any{
				"text": p.Prompt,
				"clip": link(nodeCLIP),
			},
		},
		nodeUNET: {
			ClassType: "UNETLoader",
			Inputs: map[string]any{
				"unet_name":    b.models.UNET,
				"weight_dtype": "default",
			},
		},
		nodeSampling: {
			ClassType: "ModelSamplingAuraFlow",
			Inputs: map[string]any{
				"shift": 3,
				"model": link(nodeUNET),
			},
		},
		NodeSave: {
			ClassType: "SaveImage",
			Inputs: map[string]any{
				"filename_prefix": prefix,
				"images":          link(nodeDecode),
			},
		},
	}

	return Spec{Graph: graph, Seed: seed, FilenamePrefix: prefix}, nil
}

func link(id string) []any {
	return []any{id, 0}
}
