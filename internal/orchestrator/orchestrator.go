// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator drives one node from prompt to a quality-gated
// artifact: build a job, submit it, poll it, fetch the image, score it, and
// loop until the quality gate accepts or the attempt budget runs out.
//
// Attempts within a run are strictly sequential. The caller guarantees that
// at most one run per node is in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/advisory"
	"github.com/pdiddy/image-tree/internal/jobspec"
	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/metrics"
	"github.com/pdiddy/image-tree/internal/quality"
	"github.com/pdiddy/image-tree/internal/synthesis"
	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultMaxIterations bounds attempts when config leaves it zero.
const DefaultMaxIterations = 5

// Synthesizer is the synthesis backend as the orchestrator sees it.
type Synthesizer interface {
	Submit(ctx context.Context, spec jobspec.Spec) (string, error)
	Poll(ctx context.Context, jobID string, timeout time.Duration) (synthesis.JobStatus, error)
	Fetch(ctx context.Context, jobID string) ([]byte, error)
}

// Evaluator scores artifacts.
type Evaluator interface {
	ScoreQuality(ctx context.Context, artifact []byte, prompt string) (advisory.Evaluation, error)
}

// ArtifactSink persists an accepted artifact and returns its reference.
type ArtifactSink interface {
	Write(ctx context.Context, rootID, nodeID string, data []byte) (string, error)
}

// Config holds the per-run policy.
type Config struct {
	Generation types.GenerationConfig
	Quality    types.QualityConfig

	// PollTimeout is the wait budget per poll. Zero defers to the
	// synthesizer's own default.
	PollTimeout time.Duration
}

// Request names the node to generate.
type Request struct {
	NodeID string
	RootID string
	Prompt string
}

// Result is the terminal outcome of a run.
type Result struct {
	// Status is accepted or failed.
	Status types.NodeStatus

	ImageRef    string
	Score       float64
	FinalPrompt string

	// Attempts is the number of attempts started.
	Attempts int

	// BestEffort is set when the artifact was accepted on exhaustion rather
	// than by passing the gate.
	BestEffort bool

	// Trail lists every job state the run passed through.
	Trail []types.JobState

	// Err is the failure reason when Status is failed.
	Err error
}

// Orchestrator runs generation jobs. It holds no per-run state and is safe
// for concurrent use across distinct nodes.
type Orchestrator struct {
	builder   *jobspec.Builder
	synth     Synthesizer
	evaluator Evaluator
	sink      ArtifactSink
	cfg       Config
	logger    *zap.Logger
}

// New returns an Orchestrator. evaluator may be nil when evaluation is
// skipped.
func New(builder *jobspec.Builder, synth Synthesizer, evaluator Evaluator, sink ArtifactSink, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Quality.MaxIterations <= 0 {
		cfg.Quality.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		builder:   builder,
		synth:     synth,
		evaluator: evaluator,
		sink:      sink,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
	}
}

// run is the mutable state of one Run call.
type run struct {
	job    types.GenerationJob
	trail  []types.JobState
	logger *zap.Logger
}

func (r *run) enter(s types.JobState) {
	r.job.State = s
	r.trail = append(r.trail, s)
	r.logger.Debug("job state",
		zap.String(logging.FieldState, string(s)),
		zap.Int(logging.FieldAttempt, r.job.Attempt),
		zap.String(logging.FieldBackendJobID, r.job.BackendJobID))
}

// Run drives req to a terminal result. It never returns an error: every
// failure, including cancellation of ctx, is reported in Result.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	r := &run{
		job:    types.GenerationJob{NodeID: req.NodeID},
		logger: o.logger.With(zap.String(logging.FieldNodeID, req.NodeID)),
	}

	res := o.loop(ctx, req, r)
	res.Trail = r.trail

	metrics.NodesTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if res.Status == types.StatusAccepted {
		r.logger.Info("node accepted",
			zap.Float64("score", res.Score), zap.Int("attempts", res.Attempts), zap.Bool("best_effort", res.BestEffort))
	} else {
		r.logger.Warn("node failed", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
	}
	return res
}

func (o *Orchestrator) loop(ctx context.Context, req Request, r *run) Result {
	params, err := jobspec.FromConfig(req.Prompt, o.cfg.Generation)
	if err != nil {
		return failed(0, err)
	}

	maxIter := o.cfg.Quality.MaxIterations
	prompt := req.Prompt
	var best quality.Best
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxIter; attempt++ {
		if ctx.Err() != nil {
			return cancelled(ctx, attempts)
		}
		attempts = attempt
		r.job.Attempt = attempt
		r.job.BackendJobID = ""
		r.enter(types.JobBuilt)

		params.Prompt = prompt
		params.Seed = jobspec.AttemptSeed(o.cfg.Generation.Seed, attempt)
		spec, err := o.builder.Build(params)
		if err != nil {
			r.enter(types.JobBackendFailed)
			metrics.AttemptsTotal.WithLabelValues("fatal").Inc()
			return failed(attempts, err)
		}

		artifact, err := o.produce(ctx, r, spec)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx, attempts)
			}
			r.enter(types.JobBackendFailed)
			if fatal(err) {
				metrics.AttemptsTotal.WithLabelValues("fatal").Inc()
				return failed(attempts, err)
			}
			metrics.AttemptsTotal.WithLabelValues("backend_failed").Inc()
			r.logger.Warn("attempt failed", zap.Int(logging.FieldAttempt, attempt), zap.Error(err))
			lastErr = err
			if attempt < maxIter {
				r.enter(types.JobRetrying)
				continue
			}
			r.enter(types.JobExhausted)
			break
		}

		eval, evaluated := o.evaluate(ctx, r, artifact, prompt)
		if ctx.Err() != nil {
			return cancelled(ctx, attempts)
		}
		r.enter(types.JobEvaluated)

		best.Offer(quality.Candidate{Artifact: artifact, Score: eval.Score, Prompt: prompt, Attempt: attempt})

		decision := quality.Decide(quality.Input{
			Score:             eval.Score,
			Accuracy:          eval.PromptAccuracy,
			Threshold:         o.cfg.Quality.Threshold,
			AccuracyThreshold: o.cfg.Quality.AccuracyThreshold,
			Attempt:           attempt,
			MaxIterations:     maxIter,
			SkipEvaluation:    o.cfg.Quality.SkipEvaluation,
		})
		metrics.AttemptsTotal.WithLabelValues(outcome(decision)).Inc()
		r.logger.Debug("quality decision",
			zap.Int(logging.FieldAttempt, attempt), zap.Float64("score", eval.Score), zap.Stringer("decision", decision))

		switch decision {
		case quality.Accept:
			r.enter(types.JobAccepted)
			return o.accept(ctx, req, quality.Candidate{Artifact: artifact, Score: eval.Score, Prompt: prompt, Attempt: attempt}, attempts, false)
		case quality.Retry:
			r.enter(types.JobRetrying)
			if o.cfg.Quality.RefinePrompt && evaluated {
				prompt = quality.Refine(req.Prompt, prompt, eval)
			}
			continue
		}
		r.enter(types.JobExhausted)
		break
	}

	if c, ok := best.Get(); ok {
		return o.accept(ctx, req, c, attempts, true)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no artifact after %d attempts", types.ErrBackendFailed, attempts)
	}
	return failed(attempts, lastErr)
}

// produce submits spec, waits for it, and fetches the artifact. A timed-out
// poll gets one more budget on the same backend job before escalating.
func (o *Orchestrator) produce(ctx context.Context, r *run, spec jobspec.Spec) ([]byte, error) {
	jobID, err := o.synth.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	r.job.BackendJobID = jobID
	r.enter(types.JobSubmitted)

	r.enter(types.JobPolling)
	_, err = o.synth.Poll(ctx, jobID, o.cfg.PollTimeout)
	if errors.Is(err, types.ErrTimedOut) && ctx.Err() == nil {
		r.logger.Info("poll timed out, waiting once more", zap.String(logging.FieldBackendJobID, jobID))
		_, err = o.synth.Poll(ctx, jobID, o.cfg.PollTimeout)
	}
	if err != nil {
		return nil, err
	}

	data, err := o.synth.Fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	r.enter(types.JobCompleted)
	return data, nil
}

// evaluate scores artifact. It reports false when the score is a stand-in:
// evaluation skipped or failed. A failed evaluation scores 0.
func (o *Orchestrator) evaluate(ctx context.Context, r *run, artifact []byte, prompt string) (advisory.Evaluation, bool) {
	if o.cfg.Quality.SkipEvaluation || o.evaluator == nil {
		return advisory.Evaluation{Score: quality.SkippedScore, PromptAccuracy: quality.SkippedScore}, false
	}
	eval, err := o.evaluator.ScoreQuality(ctx, artifact, prompt)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("evaluation failed, scoring 0", zap.Int(logging.FieldAttempt, r.job.Attempt), zap.Error(err))
		}
		return advisory.Evaluation{}, false
	}
	metrics.QualityScore.Observe(eval.Score)
	return eval, true
}

// accept stores the winning artifact. Once a candidate is chosen the write
// is not abandoned halfway: cancellation is checked before, not during.
func (o *Orchestrator) accept(ctx context.Context, req Request, c quality.Candidate, attempts int, bestEffort bool) Result {
	if ctx.Err() != nil {
		return cancelled(ctx, attempts)
	}
	ref, err := o.sink.Write(context.WithoutCancel(ctx), req.RootID, req.NodeID, c.Artifact)
	if err != nil {
		return failed(attempts, fmt.Errorf("storing artifact: %w", err))
	}
	return Result{
		Status:      types.StatusAccepted,
		ImageRef:    ref,
		Score:       c.Score,
		FinalPrompt: c.Prompt,
		Attempts:    attempts,
		BestEffort:  bestEffort,
	}
}

// fatal reports errors that end the run without further attempts.
func fatal(err error) bool {
	return errors.Is(err, types.ErrBackendRejected) ||
		errors.Is(err, types.ErrArtifactMissing) ||
		errors.Is(err, types.ErrConfiguration)
}

func failed(attempts int, err error) Result {
	return Result{Status: types.StatusFailed, Attempts: attempts, Err: err}
}

func cancelled(ctx context.Context, attempts int) Result {
	return failed(attempts, fmt.Errorf("%w: %v", types.ErrCancelled, context.Cause(ctx)))
}

func outcome(d quality.Decision) string {
	switch d {
	case quality.Accept:
		return "accepted"
	case quality.Retry:
		return "retrying"
	}
	return "exhausted"
}
