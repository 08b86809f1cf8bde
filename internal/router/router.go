// ABOUTME: Router runs the per-request routing state machine
// ABOUTME: Stateless across requests; one Route call is one walk from START to a terminal state

package router

import (
	"context"
	"log/slog"

	"github.com/2389/muse-gateway/internal/recall"
	"github.com/2389/muse-gateway/internal/triviality"
	"github.com/2389/muse-gateway/internal/workflow"
)

// Routed labels the path that served a request.
type Routed string

const (
	RoutedStreaming Routed = "streaming"
	// RoutedSecondary keeps the historical label of the alternate orchestrator.
	RoutedSecondary Routed = "claude"
)

// State is a step of the routing state machine.
type State string

const (
	StateStart            State = "start"
	StateContextFetch     State = "context_fetch"
	StatePrimaryAttempt   State = "primary_attempt"
	StateSecondaryAttempt State = "secondary_attempt"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// ContextProvider fetches memory for the request.
type ContextProvider interface {
	ProvideContext(ctx context.Context, threadID, userID, message, messageID string) (*recall.Result, error)
}

// PrimaryPath is the streaming generation workflow.
type PrimaryPath interface {
	Stream(ctx context.Context, req workflow.Request, maxIterations int, emit workflow.Emitter) (*workflow.Result, error)
}

// SecondaryPath is the alternate orchestrator used as a fallback.
type SecondaryPath interface {
	Generate(ctx context.Context, req workflow.Request) (*workflow.Response, error)
}

// Options holds the feature flags. Use DefaultOptions for the documented defaults.
type Options struct {
	PrimaryEnabled   bool
	SecondaryEnabled bool
	MaxIterations    int
}

// DefaultOptions enables only the primary path with an iteration cap of 10.
func DefaultOptions() Options {
	return Options{
		PrimaryEnabled:   true,
		SecondaryEnabled: false,
		MaxIterations:    workflow.DefaultMaxIterations,
	}
}

// Request is one inbound message.
type Request struct {
	ThreadID        string
	PromptMessageID string
	UserID          string
	Message         string

	// Emit receives streaming events from the primary path. May be nil.
	Emit workflow.Emitter
}

// Result is the terminal outcome of a successful Route.
type Result struct {
	Routed   Routed
	Trivial  bool
	Context  *recall.Result
	Response *workflow.Response
	Trace    []State
}

// Router dispatches requests. Construct once and share.
type Router struct {
	context   ContextProvider
	primary   PrimaryPath
	secondary SecondaryPath
	opts      Options
	logger    *slog.Logger
}

// New creates a Router. primary or secondary may be nil when the matching flag is off.
func New(contextProvider ContextProvider, primary PrimaryPath, secondary SecondaryPath, opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = workflow.DefaultMaxIterations
	}
	return &Router{
		context:   contextProvider,
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		logger:    logger.With("component", "router"),
	}
}

// Options returns the flags the router was built with.
func (r *Router) Options() Options {
	return r.opts
}

// Route walks the state machine for req.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	primaryOn := r.opts.PrimaryEnabled && r.primary != nil
	secondaryOn := r.opts.SecondaryEnabled && r.secondary != nil
	if !primaryOn && !secondaryOn {
		r.logger.Error("no generation path enabled",
			"thread_id", req.ThreadID,
			"primary_enabled", r.opts.PrimaryEnabled,
			"secondary_enabled", r.opts.SecondaryEnabled,
		)
		return nil, ErrNoRouteConfigured
	}

	log := r.logger.With("thread_id", req.ThreadID, "user_id", req.UserID, "message_id", req.PromptMessageID)
	res := &Result{Trace: []State{StateStart}}

	res.Trivial = triviality.Classify(req.Message).Trivial
	log.Debug("message classified", "trivial", res.Trivial)

	res.Trace = append(res.Trace, StateContextFetch)
	res.Context = r.fetchContext(ctx, log, req)

	wfReq := workflow.Request{
		ThreadID:        req.ThreadID,
		UserID:          req.UserID,
		Message:         req.Message,
		PromptMessageID: req.PromptMessageID,
		Context:         res.Context.Facts(),
	}

	var primaryErr *PrimaryGenerationError
	if primaryOn {
		res.Trace = append(res.Trace, StatePrimaryAttempt)
		out, err := r.primary.Stream(ctx, wfReq, r.opts.MaxIterations, req.Emit)
		if err == nil {
			res.Routed = RoutedStreaming
			res.Response = out.Response
			res.Trace = append(res.Trace, StateDone)
			log.Info("request routed", "routed", string(res.Routed), "iterations", out.Iterations)
			return res, nil
		}
		primaryErr = &PrimaryGenerationError{Err: err}
		log.Warn("primary generation failed",
			"error", err,
			"failed_step", workflow.FailedStep(err),
			"fallback_enabled", secondaryOn,
		)
		if !secondaryOn {
			res.Trace = append(res.Trace, StateFailed)
			return nil, &SecondaryGenerationError{Err: ErrSecondaryDisabled, Primary: primaryErr}
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Trace = append(res.Trace, StateFailed)
		log.Info("request cancelled before fallback", "error", ctxErr)
		return nil, ctxErr
	}

	res.Trace = append(res.Trace, StateSecondaryAttempt)
	resp, err := r.secondary.Generate(ctx, wfReq)
	if err != nil {
		res.Trace = append(res.Trace, StateFailed)
		log.Error("all routing paths failed", "error", err)
		return nil, &SecondaryGenerationError{Err: err, Primary: primaryErr}
	}

	res.Routed = RoutedSecondary
	res.Response = resp
	res.Trace = append(res.Trace, StateDone)
	log.Info("request routed", "routed", string(res.Routed))
	return res, nil
}

// fetchContext never fails; errors leave an empty context.
func (r *Router) fetchContext(ctx context.Context, log *slog.Logger, req Request) *recall.Result {
	if r.context == nil {
		return &recall.Result{}
	}
	got, err := r.context.ProvideContext(ctx, req.ThreadID, req.UserID, req.Message, req.PromptMessageID)
	if err != nil {
		log.Warn("continuing without context", "error", (&ContextFetchError{Err: err}).Error())
		return &recall.Result{}
	}
	if got == nil {
		return &recall.Result{}
	}
	log.Debug("context ready",
		"search_path", string(got.SearchPath),
		"memories_found", got.MemoriesFound,
	)
	return got
}
