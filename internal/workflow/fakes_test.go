// ABOUTME: Hand-written collaborator fakes shared by the workflow tests

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/2389/muse-gateway/internal/telemetry"
	"github.com/2389/muse-gateway/internal/toolsession"
)

type scriptedPlanner struct {
	plans []*Plan
	err   error
	calls []PlanInput
	envs  []StepEnv
}

func (p *scriptedPlanner) Plan(_ context.Context, env StepEnv, in PlanInput) (*Plan, error) {
	p.calls = append(p.calls, in)
	p.envs = append(p.envs, env)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.calls) > len(p.plans) {
		return &Plan{Goal: "answer"}, nil
	}
	return p.plans[len(p.calls)-1], nil
}

type mapExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	fail    map[string]error
	envs    []StepEnv
}

func (e *mapExecutor) ExecuteTool(_ context.Context, env StepEnv, call ToolCall) (*ToolOutput, error) {
	e.mu.Lock()
	e.envs = append(e.envs, env)
	e.mu.Unlock()
	if err, ok := e.fail[call.Tool]; ok {
		return nil, err
	}
	return &ToolOutput{Output: e.outputs[call.Tool], Usage: &Usage{PromptTokens: 1}}, nil
}

type joinSummarizer struct {
	seen []ToolResult
	err  error
}

func (s *joinSummarizer) Summarize(_ context.Context, _ StepEnv, message string, results []ToolResult) (*Summary, error) {
	s.seen = results
	if s.err != nil {
		return nil, s.err
	}
	parts := []string{message}
	for _, r := range results {
		if r.Error != "" {
			parts = append(parts, fmt.Sprintf("%s failed: %s", r.Tool, r.Error))
			continue
		}
		parts = append(parts, r.Tool+"="+r.Output)
	}
	return &Summary{Text: strings.Join(parts, "; "), Usage: &Usage{ModelID: "small", PromptTokens: 10, CompletionTokens: 5}}, nil
}

type echoResponder struct {
	calls   int
	env     StepEnv
	summary string
	err     error
}

func (r *echoResponder) Respond(_ context.Context, env StepEnv, _ string, summary string) (*Response, error) {
	r.calls++
	r.env = env
	r.summary = summary
	if r.err != nil {
		return nil, r.err
	}
	return &Response{MessageID: "reply-1", Text: "reply: " + summary}, nil
}

func (r *echoResponder) RespondStream(_ context.Context, env StepEnv, _ string, summary string, emit func(string) error) (*Response, error) {
	r.calls++
	r.env = env
	r.summary = summary
	if r.err != nil {
		return nil, r.err
	}
	for _, d := range []string{"hel", "lo"} {
		if err := emit(d); err != nil {
			return nil, err
		}
	}
	return &Response{MessageID: "reply-1", Text: "hello", Usage: &Usage{PromptTokens: 50, CompletionTokens: 2}}, nil
}

type fakeSessions struct {
	calls    int
	toolkits []string
	err      error
}

func (f *fakeSessions) Acquire(_ context.Context, userID string, toolkits []string) (*toolsession.Handle, error) {
	f.calls++
	f.toolkits = toolkits
	if f.err != nil {
		return nil, f.err
	}
	return &toolsession.Handle{UserID: userID, SessionID: "sess-" + userID, SessionURL: "https://tools.example"}, nil
}

type recordingTelemetry struct {
	mu    sync.Mutex
	usage []telemetry.Usage
	tools []telemetry.ToolCall
}

func (r *recordingTelemetry) RecordUsage(_ context.Context, u telemetry.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, u)
}

func (r *recordingTelemetry) RecordToolExecution(_ context.Context, c telemetry.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, c)
}

func (r *recordingTelemetry) agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.usage {
		out = append(out, u.Agent)
	}
	return out
}

var errBoom = errors.New("boom")
