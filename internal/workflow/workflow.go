// ABOUTME: Engine sequences the four generation steps for one request
// ABOUTME: Run is one pass; Stream loops plan/execute under an iteration cap and streams the reply

package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/muse-gateway/internal/telemetry"
	"github.com/2389/muse-gateway/internal/toolsession"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxIterations    = 10
	DefaultMaxParallelTools = 4
	DefaultToolOutputBudget = 8000
	DefaultSummaryBudget    = 4000
	DefaultPlanBudget       = 4000
)

// SessionAcquirer hands out the user's tool session for the execute step.
type SessionAcquirer interface {
	Acquire(ctx context.Context, userID string, toolkits []string) (*toolsession.Handle, error)
}

// Telemetry receives usage and tool execution records. Implementations must not fail.
type Telemetry interface {
	RecordUsage(ctx context.Context, u telemetry.Usage)
	RecordToolExecution(ctx context.Context, c telemetry.ToolCall)
}

// Deps are the collaborators an Engine drives. Responder is required for Run,
// StreamResponder for Stream.
type Deps struct {
	Planner         Planner
	Executor        ToolExecutor
	Summarizer      Summarizer
	Responder       Responder
	StreamResponder StreamResponder
	Sessions        SessionAcquirer
	Telemetry       Telemetry
}

// Options bounds the pipeline.
type Options struct {
	MaxIterations    int
	MaxParallelTools int
	ToolOutputBudget int
	SummaryBudget    int
	PlanBudget       int
}

// Request is one generation request.
type Request struct {
	ThreadID        string
	UserID          string
	Message         string
	PromptMessageID string
	Context         []string
}

// Result describes a completed pipeline run.
type Result struct {
	Success     bool
	Iterations  int
	CapReached  bool
	ToolResults []ToolResult
	Summary     string
	Response    *Response
}

// EventKind classifies stream events.
type EventKind string

const (
	EventStep  EventKind = "step"
	EventTool  EventKind = "tool"
	EventDelta EventKind = "delta"
)

// Event is one progress notification from Stream.
type Event struct {
	Kind  EventKind `json:"kind"`
	Step  string    `json:"step,omitempty"`
	Tool  string    `json:"tool,omitempty"`
	Error string    `json:"error,omitempty"`
	Text  string    `json:"text,omitempty"`
}

// Emitter receives stream events. Returning an error aborts the stream.
type Emitter func(Event) error

var errMissingCollaborator = errors.New("workflow collaborator not configured")

// Engine runs the generation pipeline. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates an Engine.
func New(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxParallelTools <= 0 {
		opts.MaxParallelTools = DefaultMaxParallelTools
	}
	if opts.ToolOutputBudget <= 0 {
		opts.ToolOutputBudget = DefaultToolOutputBudget
	}
	if opts.SummaryBudget <= 0 {
		opts.SummaryBudget = DefaultSummaryBudget
	}
	if opts.PlanBudget <= 0 {
		opts.PlanBudget = DefaultPlanBudget
	}
	return &Engine{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "workflow"),
	}
}

// Run executes plan, execute tools, summarize and respond once each.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if e.deps.Responder == nil {
		return nil, &StepError{Step: StepRespond, Err: errMissingCollaborator}
	}

	res, err := e.gather(ctx, req, 1, false, nil)
	if err != nil {
		return nil, err
	}

	env := e.env(req, e.opts.SummaryBudget)
	env.Context = clipFacts(req.Context, e.opts.PlanBudget)
	resp, err := e.deps.Responder.Respond(ctx, env, req.Message, res.Summary)
	if err != nil {
		return nil, &StepError{Step: StepRespond, Err: err}
	}
	e.recordUsage(ctx, req, StepRespond, resp.Usage)

	res.Response = resp
	res.Success = true
	e.logger.Info("workflow completed",
		"thread_id", req.ThreadID,
		"user_id", req.UserID,
		"tool_calls", len(res.ToolResults),
	)
	return res, nil
}

// Stream runs plan and execute repeatedly until the planner stops asking for
// tools or maxIterations passes have run, then summarizes and streams the reply.
// A non-positive maxIterations uses the configured cap.
func (e *Engine) Stream(ctx context.Context, req Request, maxIterations int, emit Emitter) (*Result, error) {
	if e.deps.StreamResponder == nil {
		return nil, &StepError{Step: StepRespond, Err: errMissingCollaborator}
	}
	if maxIterations <= 0 {
		maxIterations = e.opts.MaxIterations
	}
	if emit == nil {
		emit = func(Event) error { return nil }
	}

	res, err := e.gather(ctx, req, maxIterations, true, emit)
	if err != nil {
		return nil, err
	}

	if err := emit(Event{Kind: EventStep, Step: StepRespond}); err != nil {
		return nil, err
	}
	env := e.env(req, e.opts.SummaryBudget)
	env.Context = clipFacts(req.Context, e.opts.PlanBudget)
	resp, err := e.deps.StreamResponder.RespondStream(ctx, env, req.Message, res.Summary, func(delta string) error {
		return emit(Event{Kind: EventDelta, Text: delta})
	})
	if err != nil {
		return nil, &StepError{Step: StepRespond, Err: err}
	}
	e.recordUsage(ctx, req, StepRespond, resp.Usage)

	res.Response = resp
	res.Success = true
	e.logger.Info("workflow stream completed",
		"thread_id", req.ThreadID,
		"user_id", req.UserID,
		"iterations", res.Iterations,
		"cap_reached", res.CapReached,
		"tool_calls", len(res.ToolResults),
	)
	return res, nil
}

// gather runs the plan/execute loop followed by summarize. With loop false a
// single plan/execute pass is the whole budget and not reported as a cap.
func (e *Engine) gather(ctx context.Context, req Request, maxIterations int, loop bool, emit Emitter) (*Result, error) {
	if e.deps.Planner == nil {
		return nil, &StepError{Step: StepPlan, Err: errMissingCollaborator}
	}
	if e.deps.Summarizer == nil {
		return nil, &StepError{Step: StepSummarize, Err: errMissingCollaborator}
	}

	res := &Result{}
	for res.Iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := notify(emit, Event{Kind: EventStep, Step: StepPlan}); err != nil {
			return nil, err
		}

		env := e.env(req, e.opts.PlanBudget)
		env.Context = clipFacts(req.Context, e.opts.PlanBudget)
		plan, err := e.deps.Planner.Plan(ctx, env, PlanInput{
			Message:   req.Message,
			Iteration: res.Iterations,
			Prior:     clipResults(res.ToolResults, e.opts.PlanBudget),
		})
		if err != nil {
			return nil, &StepError{Step: StepPlan, Err: err}
		}
		e.recordUsage(ctx, req, StepPlan, plan.Usage)
		res.Iterations++

		if len(plan.ToolCalls) == 0 {
			break
		}

		if err := notify(emit, Event{Kind: EventStep, Step: StepExecute}); err != nil {
			return nil, err
		}
		results, err := e.executeTools(ctx, req, plan, emit)
		if err != nil {
			return nil, &StepError{Step: StepExecute, Err: err}
		}
		res.ToolResults = append(res.ToolResults, results...)

		if loop && res.Iterations == maxIterations {
			res.CapReached = true
			e.logger.Warn("iteration cap reached, summarizing partial results",
				"thread_id", req.ThreadID,
				"user_id", req.UserID,
				"max_iterations", maxIterations,
			)
		}
	}

	if err := notify(emit, Event{Kind: EventStep, Step: StepSummarize}); err != nil {
		return nil, err
	}
	summary, err := e.deps.Summarizer.Summarize(ctx, e.env(req, e.opts.ToolOutputBudget), req.Message,
		clipResults(res.ToolResults, e.opts.ToolOutputBudget))
	if err != nil {
		return nil, &StepError{Step: StepSummarize, Err: err}
	}
	e.recordUsage(ctx, req, StepSummarize, summary.Usage)

	res.Summary, _ = clip(summary.Text, e.opts.SummaryBudget)
	return res, nil
}

func (e *Engine) env(req Request, budget int) StepEnv {
	return StepEnv{
		UserID:          req.UserID,
		ThreadID:        req.ThreadID,
		PromptMessageID: req.PromptMessageID,
		Budget:          budget,
	}
}

func (e *Engine) recordUsage(ctx context.Context, req Request, step string, u *Usage) {
	if e.deps.Telemetry == nil || u == nil {
		return
	}
	e.deps.Telemetry.RecordUsage(ctx, telemetry.Usage{
		UserID:           req.UserID,
		ThreadID:         req.ThreadID,
		Agent:            step,
		ModelID:          u.ModelID,
		ProviderID:       u.ProviderID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		EstimatedCost:    u.EstimatedCost,
	})
}

func notify(emit Emitter, ev Event) error {
	if emit == nil {
		return nil
	}
	return emit(ev)
}
