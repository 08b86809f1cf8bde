// ABOUTME: Step collaborator contracts and the values passed between steps
// ABOUTME: Planner, ToolExecutor, Summarizer and the two responder flavours

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/muse-gateway/internal/store"
)

// Step names, also used as the agent name on usage records.
const (
	StepPlan      = "plan"
	StepExecute   = "execute_tools"
	StepSummarize = "summarize"
	StepRespond   = "respond"
)

// StepEnv is everything a step is allowed to know about the request.
type StepEnv struct {
	UserID          string
	ThreadID        string
	PromptMessageID string

	// Budget is the maximum number of characters of input the step may consume.
	Budget int

	// Context holds memory facts fetched before generation. Only plan and respond see it.
	Context []string

	// SessionID and SessionURL identify the user's tool session. Set for execute only.
	SessionID  string
	SessionURL string
}

// Usage is the model accounting a collaborator reports for one call.
type Usage struct {
	ModelID          string  `json:"model_id,omitempty"`
	ProviderID       string  `json:"provider_id,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// ToolCall is one tool invocation requested by the planner.
type ToolCall struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args store.ToolArgs `json:"args"`
}

// PlanInput is what the planner sees on each iteration.
type PlanInput struct {
	Message   string       `json:"message"`
	Iteration int          `json:"iteration"`
	Prior     []ToolResult `json:"prior,omitempty"`
}

// Plan is the planner's structured decision. An empty ToolCalls list means
// no (further) tools are needed.
type Plan struct {
	Goal      string     `json:"goal"`
	Toolkits  []string   `json:"toolkits,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// ToolOutput is what a ToolExecutor returns for a successful call.
type ToolOutput struct {
	Output string `json:"output"`
	Usage  *Usage `json:"usage,omitempty"`
}

// ToolResult is the outcome of one tool call as seen by later steps.
type ToolResult struct {
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Summary is the bounded digest handed to the respond step.
type Summary struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

// Response is the user-facing message produced by the respond step.
type Response struct {
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Planner produces a plan for the message.
type Planner interface {
	Plan(ctx context.Context, env StepEnv, in PlanInput) (*Plan, error)
}

// ToolExecutor runs a single tool call inside the user's tool session.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, env StepEnv, call ToolCall) (*ToolOutput, error)
}

// Summarizer compresses tool results and the original message.
type Summarizer interface {
	Summarize(ctx context.Context, env StepEnv, message string, results []ToolResult) (*Summary, error)
}

// Responder produces the final message in one call.
type Responder interface {
	Respond(ctx context.Context, env StepEnv, message string, summary string) (*Response, error)
}

// StreamResponder produces the final message incrementally, calling emit per text delta.
type StreamResponder interface {
	RespondStream(ctx context.Context, env StepEnv, message string, summary string, emit func(delta string) error) (*Response, error)
}

// StepError reports which pipeline step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the name of the step that produced err, if any.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
