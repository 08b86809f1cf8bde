// ABOUTME: The execute-tools step: acquires the tool session and runs calls concurrently
// ABOUTME: Individual tool failures become failed results; only infrastructure errors abort

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/muse-gateway/internal/telemetry"
)

func (e *Engine) executeTools(ctx context.Context, req Request, plan *Plan, emit Emitter) ([]ToolResult, error) {
	if e.deps.Executor == nil {
		return nil, errMissingCollaborator
	}
	if e.deps.Sessions == nil {
		return nil, fmt.Errorf("tool session: %w", errMissingCollaborator)
	}

	handle, err := e.deps.Sessions.Acquire(ctx, req.UserID, plan.Toolkits)
	if err != nil {
		return nil, fmt.Errorf("acquiring tool session: %w", err)
	}

	env := e.env(req, e.opts.ToolOutputBudget)
	env.SessionID = handle.SessionID
	env.SessionURL = handle.SessionURL

	results := make([]ToolResult, len(plan.ToolCalls))
	var emitMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxParallelTools)
	for i, call := range plan.ToolCalls {
		g.Go(func() error {
			start := time.Now()
			out, callErr := e.deps.Executor.ExecuteTool(gctx, env, call)
			elapsed := time.Since(start)
			if out == nil {
				out = &ToolOutput{}
			}

			// a cancelled request is not a tool failure
			if callErr != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			result := ToolResult{CallID: call.ID, Tool: call.Tool}
			outputBytes := 0
			if callErr != nil {
				result.Error, _ = clip(callErr.Error(), e.opts.ToolOutputBudget)
				e.logger.Warn("tool call failed",
					"user_id", req.UserID,
					"tool", call.Tool,
					"error", callErr,
				)
			} else {
				outputBytes = len(out.Output)
				result.Output, result.Truncated = clip(out.Output, e.opts.ToolOutputBudget)
				e.recordUsage(gctx, req, StepExecute, out.Usage)
			}
			results[i] = result

			if e.deps.Telemetry != nil {
				e.deps.Telemetry.RecordToolExecution(gctx, telemetry.ToolCall{
					UserID:      req.UserID,
					SessionID:   handle.SessionID,
					ThreadID:    req.ThreadID,
					ToolName:    call.Tool,
					Args:        call.Args,
					Err:         callErr,
					Duration:    elapsed,
					OutputBytes: outputBytes,
				})
			}

			emitMu.Lock()
			defer emitMu.Unlock()
			return notify(emit, Event{Kind: EventTool, Tool: call.Tool, Error: result.Error})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
