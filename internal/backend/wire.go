// ABOUTME: Wire types for the backend HTTP contract
// ABOUTME: Shared by the Client and the fake backend used for local runs

package backend

import (
	"github.com/2389/muse-gateway/internal/toolsession"
	"github.com/2389/muse-gateway/internal/workflow"
)

// Backend routes.
const (
	PathPlan        = "/v1/plan"
	PathExecuteTool = "/v1/tools/execute"
	PathSummarize   = "/v1/summarize"
	PathRespond     = "/v1/respond"
	PathGenerate    = "/v1/generate"
	PathSignals     = "/v1/signals"
	PathConnections = "/v1/connections"
	PathSessions    = "/v1/sessions"
	PathWorkerRun   = "/v1/workers/run"
	PathNotify      = "/v1/notify"
	PathHealth      = "/health"
)

// Env is the wire form of workflow.StepEnv.
type Env struct {
	UserID          string   `json:"user_id"`
	ThreadID        string   `json:"thread_id,omitempty"`
	PromptMessageID string   `json:"prompt_message_id,omitempty"`
	Budget          int      `json:"budget,omitempty"`
	Context         []string `json:"context,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	SessionURL      string   `json:"session_url,omitempty"`
}

func envFrom(e workflow.StepEnv) Env {
	return Env(e)
}

// PlanRequest asks for the next plan.
type PlanRequest struct {
	Env   Env                `json:"env"`
	Input workflow.PlanInput `json:"input"`
}

// ExecuteToolRequest runs one tool call.
type ExecuteToolRequest struct {
	Env  Env               `json:"env"`
	Call workflow.ToolCall `json:"call"`
}

// SummarizeRequest compresses tool results.
type SummarizeRequest struct {
	Env     Env                   `json:"env"`
	Message string                `json:"message"`
	Results []workflow.ToolResult `json:"results"`
}

// RespondRequest produces the final message. With Stream set the response
// body is newline-delimited RespondChunk values.
type RespondRequest struct {
	Env     Env    `json:"env"`
	Message string `json:"message"`
	Summary string `json:"summary"`
	Stream  bool   `json:"stream"`
}

// RespondChunk is one line of a streamed respond body.
type RespondChunk struct {
	Delta     string          `json:"delta,omitempty"`
	Done      bool            `json:"done,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Usage     *workflow.Usage `json:"usage,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// GenerateRequest is a whole request handed to the secondary orchestrator.
type GenerateRequest struct {
	ThreadID        string   `json:"thread_id"`
	UserID          string   `json:"user_id"`
	Message         string   `json:"message"`
	PromptMessageID string   `json:"prompt_message_id"`
	Context         []string `json:"context,omitempty"`
}

// SignalsRequest asks whether a message warrants deep memory search.
type SignalsRequest struct {
	Message string `json:"message"`
}

// SignalsResponse answers a SignalsRequest.
type SignalsResponse struct {
	DeepSearch bool `json:"deep_search"`
}

// OpenSessionRequest opens a tool session.
type OpenSessionRequest struct {
	UserID   string   `json:"user_id"`
	Toolkits []string `json:"toolkits"`
}

// NotifyRequest delivers a background task notification.
type NotifyRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
	Text   string `json:"text"`
}

// ErrorResponse is the body of any non-2xx backend reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConnectionsResponse lists a user's initiated connections.
type ConnectionsResponse struct {
	Connections []toolsession.Connection `json:"connections"`
}
