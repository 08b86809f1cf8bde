// ABOUTME: HTTP client for the model and tool backend
// ABOUTME: Implements every external collaborator interface of the orchestration core

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/muse-gateway/internal/recall"
	"github.com/2389/muse-gateway/internal/router"
	"github.com/2389/muse-gateway/internal/toolsession"
	"github.com/2389/muse-gateway/internal/worker"
	"github.com/2389/muse-gateway/internal/workflow"
)

// DefaultTimeout bounds non-streaming calls.
const DefaultTimeout = 60 * time.Second

// ErrStreamIncomplete is returned when a respond stream ends without a done chunk.
var ErrStreamIncomplete = errors.New("respond stream ended before done")

// StatusError is returned for non-2xx backend replies.
type StatusError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Path, e.StatusCode, e.Message)
}

// Config holds the client's connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

var (
	_ workflow.Planner               = (*Client)(nil)
	_ workflow.ToolExecutor          = (*Client)(nil)
	_ workflow.Summarizer            = (*Client)(nil)
	_ workflow.Responder             = (*Client)(nil)
	_ workflow.StreamResponder       = (*Client)(nil)
	_ router.SecondaryPath           = (*Client)(nil)
	_ recall.SignalClassifier        = (*Client)(nil)
	_ toolsession.SessionOpener      = (*Client)(nil)
	_ toolsession.ConnectionProvider = (*Client)(nil)
	_ worker.Runner                  = (*Client)(nil)
	_ worker.Notifier                = (*Client)(nil)
)

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		// streamed bodies can outlive the call timeout; the caller's context bounds them
		stream: &http.Client{},
		logger: logger.With("component", "backend"),
	}, nil
}

// Plan asks the backend for the next plan.
func (c *Client) Plan(ctx context.Context, env workflow.StepEnv, in workflow.PlanInput) (*workflow.Plan, error) {
	var plan workflow.Plan
	if err := c.postJSON(ctx, PathPlan, PlanRequest{Env: envFrom(env), Input: in}, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ExecuteTool runs one tool call in the user's session.
func (c *Client) ExecuteTool(ctx context.Context, env workflow.StepEnv, call workflow.ToolCall) (*workflow.ToolOutput, error) {
	var out workflow.ToolOutput
	if err := c.postJSON(ctx, PathExecuteTool, ExecuteToolRequest{Env: envFrom(env), Call: call}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize compresses tool results.
func (c *Client) Summarize(ctx context.Context, env workflow.StepEnv, message string, results []workflow.ToolResult) (*workflow.Summary, error) {
	var sum workflow.Summary
	req := SummarizeRequest{Env: envFrom(env), Message: message, Results: results}
	if err := c.postJSON(ctx, PathSummarize, req, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Respond produces the final message in one call.
func (c *Client) Respond(ctx context.Context, env workflow.StepEnv, message, summary string) (*workflow.Response, error) {
	var resp workflow.Response
	req := RespondRequest{Env: envFrom(env), Message: message, Summary: summary}
	if err := c.postJSON(ctx, PathRespond, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RespondStream produces the final message as newline-delimited chunks,
// calling emit for each text delta.
func (c *Client) RespondStream(ctx context.Context, env workflow.StepEnv, message, summary string, emit func(delta string) error) (*workflow.Response, error) {
	req := RespondRequest{Env: envFrom(env), Message: message, Summary: summary, Stream: true}
	httpResp, err := c.send(ctx, c.stream, http.MethodPost, PathRespond, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var (
		text strings.Builder
		out  workflow.Response
	)
	dec := json.NewDecoder(httpResp.Body)
	for {
		var chunk RespondChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrStreamIncomplete
			}
			return nil, fmt.Errorf("decoding respond stream: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("backend %s: %s", PathRespond, chunk.Error)
		}
		if chunk.Delta != "" {
			text.WriteString(chunk.Delta)
			if emit != nil {
				if err := emit(chunk.Delta); err != nil {
					return nil, err
				}
			}
		}
		if chunk.Done {
			out.MessageID = chunk.MessageID
			out.Usage = chunk.Usage
			out.Text = text.String()
			return &out, nil
		}
	}
}

// Generate runs the whole request through the secondary orchestrator.
func (c *Client) Generate(ctx context.Context, req workflow.Request) (*workflow.Response, error) {
	var resp workflow.Response
	if err := c.postJSON(ctx, PathGenerate, GenerateRequest(req), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NeedsDeepSearch asks the backend whether a message warrants smart recall.
func (c *Client) NeedsDeepSearch(ctx context.Context, message string) (bool, error) {
	var resp SignalsResponse
	if err := c.postJSON(ctx, PathSignals, SignalsRequest{Message: message}, &resp); err != nil {
		return false, err
	}
	return resp.DeepSearch, nil
}

// OpenSession opens a tool session covering toolkits.
func (c *Client) OpenSession(ctx context.Context, userID string, toolkits []string) (*toolsession.OpenedSession, error) {
	var opened toolsession.OpenedSession
	if err := c.postJSON(ctx, PathSessions, OpenSessionRequest{UserID: userID, Toolkits: toolkits}, &opened); err != nil {
		return nil, err
	}
	if opened.SessionID == "" {
		return nil, fmt.Errorf("backend %s: empty session id", PathSessions)
	}
	return &opened, nil
}

// ListInitiatedConnections lists connections stuck in the initiated state.
func (c *Client) ListInitiatedConnections(ctx context.Context, userID string) ([]toolsession.Connection, error) {
	q := url.Values{"user_id": {userID}, "status": {"initiated"}}
	var resp ConnectionsResponse
	if err := c.do(ctx, http.MethodGet, PathConnections+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Connections, nil
}

// RunWorker executes one background worker.
func (c *Client) RunWorker(ctx context.Context, req worker.RunRequest) (*worker.RunOutcome, error) {
	var out worker.RunOutcome
	if err := c.postJSON(ctx, PathWorkerRun, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notify delivers a background task notification.
func (c *Client) Notify(ctx context.Context, userID, taskID, text string) error {
	return c.postJSON(ctx, PathNotify, NotifyRequest{UserID: userID, TaskID: taskID, Text: text}, nil)
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, PathHealth, nil, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do sends a request and decodes a JSON reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, c.http, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// send performs the request and turns non-2xx replies into a *StatusError.
// The caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s request failed: %w", path, err)
	}
	c.logger.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var er ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}
