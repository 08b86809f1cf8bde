// ABOUTME: Deterministic in-process implementation of the backend HTTP contract
// ABOUTME: Serves cmd/fake-backend and end-to-end gateway tests

package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2389/muse-gateway/internal/store"
	"github.com/2389/muse-gateway/internal/toolsession"
	"github.com/2389/muse-gateway/internal/worker"
	"github.com/2389/muse-gateway/internal/workflow"
)

// FakeOptions shapes the fake's behaviour.
type FakeOptions struct {
	// FailRespond makes the respond step fail, forcing the router to fall back.
	FailRespond bool
	// FailGenerate makes the secondary orchestrator fail.
	FailGenerate bool
	// Connections are returned for every user's initiated-connection listing.
	Connections []toolsession.Connection
}

// Fake is a deterministic backend. Tool-worthy messages mentioning email or
// search get a single GMAIL_SEARCH call; everything else is answered directly.
type Fake struct {
	opts FakeOptions

	mu       sync.Mutex
	sessions int
	notified []NotifyRequest
}

// NewFake creates a Fake.
func NewFake(opts FakeOptions) *Fake {
	return &Fake{opts: opts}
}

// Notified returns the notifications received so far.
func (f *Fake) Notified() []NotifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotifyRequest(nil), f.notified...)
}

// Handler returns the HTTP handler serving the backend routes.
func (f *Fake) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+PathPlan, decodeThen(f.plan))
	mux.HandleFunc("POST "+PathExecuteTool, decodeThen(f.executeTool))
	mux.HandleFunc("POST "+PathSummarize, decodeThen(f.summarize))
	mux.HandleFunc("POST "+PathRespond, f.respond)
	mux.HandleFunc("POST "+PathGenerate, decodeThen(f.generate))
	mux.HandleFunc("POST "+PathSignals, decodeThen(f.signals))
	mux.HandleFunc("POST "+PathSessions, decodeThen(f.openSession))
	mux.HandleFunc("POST "+PathWorkerRun, decodeThen(f.runWorker))
	mux.HandleFunc("POST "+PathNotify, decodeThen(f.notify))
	mux.HandleFunc("GET "+PathConnections, func(w http.ResponseWriter, r *http.Request) {
		conns := f.opts.Connections
		if conns == nil {
			conns = []toolsession.Connection{}
		}
		writeFakeJSON(w, http.StatusOK, ConnectionsResponse{Connections: conns})
	})
	return mux
}

// decodeThen decodes the JSON body into Req and writes the handler's reply.
func decodeThen[Req any](h func(Req) (any, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFakeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
			return
		}
		out, status := h(req)
		if out == nil {
			w.WriteHeader(status)
			return
		}
		writeFakeJSON(w, status, out)
	}
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fakeUsage(in, out string) *workflow.Usage {
	return &workflow.Usage{
		ModelID:          "fake-1",
		ProviderID:       "fake",
		PromptTokens:     int64(len(strings.Fields(in))),
		CompletionTokens: int64(len(strings.Fields(out))),
	}
}

func (f *Fake) plan(req PlanRequest) (any, int) {
	msg := strings.ToLower(req.Input.Message)
	plan := workflow.Plan{Goal: "answer: " + req.Input.Message}
	if len(req.Input.Prior) == 0 && (strings.Contains(msg, "email") || strings.Contains(msg, "search")) {
		plan.Toolkits = []string{"gmail"}
		plan.ToolCalls = []workflow.ToolCall{{
			ID:   "call-1",
			Tool: "GMAIL_SEARCH",
			Args: store.ToolArgs{"query": store.StringArg(req.Input.Message), "limit": store.NumberArg(5)},
		}}
	}
	plan.Usage = fakeUsage(req.Input.Message, plan.Goal)
	return plan, http.StatusOK
}

func (f *Fake) executeTool(req ExecuteToolRequest) (any, int) {
	if req.Env.SessionID == "" {
		return ErrorResponse{Error: "no tool session"}, http.StatusConflict
	}
	out := fmt.Sprintf("%s found 1 result in session %s", req.Call.Tool, req.Env.SessionID)
	return workflow.ToolOutput{Output: out}, http.StatusOK
}

func (f *Fake) summarize(req SummarizeRequest) (any, int) {
	parts := make([]string, 0, len(req.Results))
	for _, r := range req.Results {
		if r.Error != "" {
			parts = append(parts, r.Tool+" failed")
			continue
		}
		parts = append(parts, r.Output)
	}
	text := strings.Join(parts, "; ")
	return workflow.Summary{Text: text, Usage: fakeUsage(req.Message, text)}, http.StatusOK
}

func fakeAnswer(message, summary string) string {
	if summary == "" {
		return "You said: " + message
	}
	return "You said: " + message + " (" + summary + ")"
}

func (f *Fake) respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if f.opts.FailRespond {
		writeFakeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "responder unavailable"})
		return
	}

	answer := fakeAnswer(req.Message, req.Summary)
	usage := fakeUsage(req.Message, answer)
	messageID := fmt.Sprintf("msg-%d", time.Now().UnixNano())
	if !req.Stream {
		writeFakeJSON(w, http.StatusOK, workflow.Response{MessageID: messageID, Text: answer, Usage: usage})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	words := strings.SplitAfter(answer, " ")
	for _, word := range words {
		_ = enc.Encode(RespondChunk{Delta: word})
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(RespondChunk{Done: true, MessageID: messageID, Usage: usage})
}

func (f *Fake) generate(req GenerateRequest) (any, int) {
	if f.opts.FailGenerate {
		return ErrorResponse{Error: "orchestrator unavailable"}, http.StatusServiceUnavailable
	}
	text := "fallback: " + req.Message
	return workflow.Response{MessageID: "fallback-" + req.PromptMessageID, Text: text, Usage: fakeUsage(req.Message, text)}, http.StatusOK
}

func (f *Fake) signals(req SignalsRequest) (any, int) {
	msg := strings.ToLower(req.Message)
	deep := len(req.Message) >= 160 || strings.Contains(msg, "remember") || strings.Contains(msg, "what did i")
	return SignalsResponse{DeepSearch: deep}, http.StatusOK
}

func (f *Fake) openSession(req OpenSessionRequest) (any, int) {
	if req.UserID == "" {
		return ErrorResponse{Error: "user_id is required"}, http.StatusBadRequest
	}
	f.mu.Lock()
	f.sessions++
	n := f.sessions
	f.mu.Unlock()
	return toolsession.OpenedSession{
		SessionID:  fmt.Sprintf("sess-%s-%d", req.UserID, n),
		SessionURL: "https://tools.invalid/" + req.UserID,
	}, http.StatusOK
}

func (f *Fake) runWorker(req worker.RunRequest) (any, int) {
	return worker.RunOutcome{
		TaskType:         "poll",
		ToolsUsed:        []string{"GMAIL_FETCH_EMAILS"},
		Result:           json.RawMessage(`{"new":0}`),
		NotificationText: fmt.Sprintf("%s checked", req.WorkerID),
	}, http.StatusOK
}

func (f *Fake) notify(req NotifyRequest) (any, int) {
	f.mu.Lock()
	f.notified = append(f.notified, req)
	f.mu.Unlock()
	return nil, http.StatusNoContent
}
