// ABOUTME: HTTP API handlers for routing messages, tool sessions, tasks, memories and usage
// ABOUTME: Streams generation progress as SSE and maps core errors onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/muse-gateway/internal/auth"
	"github.com/2389/muse-gateway/internal/conversation"
	"github.com/2389/muse-gateway/internal/router"
	"github.com/2389/muse-gateway/internal/store"
	"github.com/2389/muse-gateway/internal/toolsession"
	"github.com/2389/muse-gateway/internal/workflow"
)

const (
	defaultTaskLimit = 20
	maxTaskLimit     = 200
	maxBodyBytes     = 1 << 20
)

var errUserRequired = errors.New("user_id is required")

// RouteRequest is the JSON request body for POST /api/route.
type RouteRequest struct {
	ThreadID        string `json:"thread_id,omitempty"`
	PromptMessageID string `json:"prompt_message_id,omitempty"`
	Message         string `json:"message"`
	AgentType       string `json:"agent_type,omitempty"`
	UserID          string `json:"user_id,omitempty"`
}

// RouteResponse is the JSON response for POST /api/route.
type RouteResponse struct {
	ThreadID        string `json:"thread_id"`
	PromptMessageID string `json:"prompt_message_id"`
	ThreadCreated   bool   `json:"thread_created"`
	Routed          string `json:"routed"`
	MessageID       string `json:"message_id,omitempty"`
	Text            string `json:"text,omitempty"`
}

// ThreadResponse is the JSON response for GET /api/threads/{id}.
type ThreadResponse struct {
	ID            string `json:"id"`
	AgentType     string `json:"agent_type"`
	MessageCount  int    `json:"message_count"`
	CreatedAt     string `json:"created_at"`
	LastMessageAt string `json:"last_message_at"`
}

// SessionRequest is the JSON request body for PUT /api/session.
type SessionRequest struct {
	SessionID  string   `json:"session_id"`
	SessionURL string   `json:"session_url"`
	Toolkits   []string `json:"toolkits"`
	UserID     string   `json:"user_id,omitempty"`
}

// SessionResponse describes the user's tool session.
type SessionResponse struct {
	SessionID    string               `json:"session_id"`
	SessionURL   string               `json:"session_url"`
	Toolkits     []string             `json:"toolkits"`
	Workers      []store.WorkerConfig `json:"workers"`
	CreatedAt    string               `json:"created_at"`
	LastActiveAt string               `json:"last_active_at,omitempty"`
	Expired      bool                 `json:"expired"`
	Created      *bool                `json:"created,omitempty"`
}

// ToolkitsRequest is the JSON request body for PATCH /api/session/toolkits.
type ToolkitsRequest struct {
	Toolkits []string `json:"toolkits"`
	UserID   string   `json:"user_id,omitempty"`
}

// WorkerRequest is the JSON request body for the worker endpoints.
type WorkerRequest struct {
	ID      string          `json:"id,omitempty"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
}

// TaskResponse is one entry of GET /api/tasks.
type TaskResponse struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	WorkerID         string          `json:"worker_id"`
	TaskType         string          `json:"task_type"`
	Status           string          `json:"status"`
	StartedAt        string          `json:"started_at"`
	CompletedAt      string          `json:"completed_at,omitempty"`
	ToolsUsed        []string        `json:"tools_used"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	Notified         bool            `json:"notified"`
	NotificationText string          `json:"notification_text,omitempty"`
}

// MemoryRequest is the JSON request body for POST /api/memories.
type MemoryRequest struct {
	ID         string   `json:"id,omitempty"`
	ThreadID   string   `json:"thread_id"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Priority   int      `json:"priority"`
	Facts      []string `json:"facts"`
	Entities   []string `json:"entities"`
	MessageIDs []string `json:"message_ids"`
	UserID     string   `json:"user_id,omitempty"`
}

// UsageStatsResponse is the JSON response for GET /api/stats/usage.
type UsageStatsResponse struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
	RequestCount     int64   `json:"request_count"`
}

// registerAPIRoutes registers the /api routes on mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/route", g.handleRoute)
	mux.HandleFunc("GET /api/threads/{id}", g.handleGetThread)
	mux.HandleFunc("GET /api/threads/{id}/events", g.handleThreadEvents)

	mux.HandleFunc("GET /api/session", g.handleGetSession)
	mux.HandleFunc("PUT /api/session", g.handlePutSession)
	mux.HandleFunc("DELETE /api/session", g.handleDeleteSession)
	mux.HandleFunc("PATCH /api/session/toolkits", g.handleUpdateToolkits)
	mux.HandleFunc("POST /api/session/workers", g.handleRegisterWorker)
	mux.HandleFunc("PUT /api/session/workers/{id}", g.handleUpdateWorker)
	mux.HandleFunc("GET /api/session/stale", g.handleStaleConnections)

	mux.HandleFunc("GET /api/tasks", g.handleListTasks)
	mux.HandleFunc("POST /api/memories", g.handleSaveMemory)
	mux.HandleFunc("DELETE /api/memories/{id}", g.handleDeleteMemory)
	mux.HandleFunc("GET /api/stats/usage", g.handleUsageStats)
}

// requestUser resolves the acting user. An authenticated user always wins;
// without auth the body's user_id, then the user_id query parameter, is used.
func (g *Gateway) requestUser(r *http.Request, bodyUser string) (string, error) {
	if u := auth.UserFromContext(r.Context()); u != "" {
		return u, nil
	}
	if g.verifier != nil {
		return "", errUserRequired
	}
	if bodyUser != "" {
		return bodyUser, nil
	}
	if u := r.URL.Query().Get("user_id"); u != "" {
		return u, nil
	}
	return "", errUserRequired
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// errorStatus maps core errors onto HTTP status codes.
func errorStatus(err error) int {
	var secondaryErr *router.SecondaryGenerationError
	switch {
	case errors.Is(err, router.ErrNoRouteConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &secondaryErr):
		return http.StatusBadGateway
	case errors.Is(err, toolsession.ErrSessionNotFound),
		errors.Is(err, toolsession.ErrWorkerNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrThreadOwnership):
		return http.StatusForbidden
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrMissingUser),
		errors.Is(err, errUserRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendError writes err as a JSON error with its mapped status. Internal
// errors are logged and reported generically.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		g.sendJSONError(w, status, "internal server error")
		return
	}
	g.sendJSONError(w, status, err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// handleRoute handles POST /api/route. With Accept: text/event-stream the
// generation progress is streamed as SSE; otherwise the final result is returned as JSON.
func (g *Gateway) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.sendError(w, r, conversation.ErrEmptyMessage)
		return
	}

	sendReq := &conversation.SendRequest{
		ThreadID:        req.ThreadID,
		PromptMessageID: req.PromptMessageID,
		UserID:          userID,
		Message:         req.Message,
		AgentType:       req.AgentType,
	}

	if !wantsSSE(r) {
		resp, err := g.conversation.Send(r.Context(), sendReq)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
		g.sendJSON(w, http.StatusOK, toRouteResponse(resp))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Ids are fixed up front so the started event can carry them.
	if sendReq.ThreadID == "" {
		sendReq.ThreadID = uuid.New().String()
	}
	if sendReq.PromptMessageID == "" {
		sendReq.PromptMessageID = uuid.New().String()
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	g.writeSSEEvent(w, "started", map[string]string{
		"thread_id":         sendReq.ThreadID,
		"prompt_message_id": sendReq.PromptMessageID,
	})
	flusher.Flush()

	// Tool events arrive from concurrent executions.
	var mu sync.Mutex
	sendReq.Emit = func(ev workflow.Event) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		g.writeSSEEvent(w, string(ev.Kind), ev)
		flusher.Flush()
		return nil
	}

	resp, err := g.conversation.Send(r.Context(), sendReq)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		status := errorStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			g.logger.Error("streamed request failed", "path", r.URL.Path, "error", err)
			message = "internal server error"
		}
		g.writeSSEEvent(w, "error", map[string]any{"error": message, "status": status})
	} else {
		g.writeSSEEvent(w, "done", toRouteResponse(resp))
	}
	flusher.Flush()
}

func toRouteResponse(resp *conversation.SendResponse) RouteResponse {
	out := RouteResponse{
		ThreadID:        resp.ThreadID,
		PromptMessageID: resp.PromptMessageID,
		ThreadCreated:   resp.ThreadCreated,
		Routed:          string(resp.Routed),
	}
	if resp.Response != nil {
		out.MessageID = resp.Response.MessageID
		out.Text = resp.Response.Text
	}
	return out
}

// handleGetThread handles GET /api/threads/{id}.
func (g *Gateway) handleGetThread(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	thread, err := g.conversation.GetThread(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, ThreadResponse{
		ID:            thread.ID,
		AgentType:     thread.AgentType,
		MessageCount:  thread.MessageCount,
		CreatedAt:     formatTime(thread.CreatedAt),
		LastMessageAt: formatTime(thread.LastMessageAt),
	})
}

// handleThreadEvents handles GET /api/threads/{id}/events, streaming the
// thread's events to a watching client until it disconnects.
func (g *Gateway) handleThreadEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	threadID := r.PathValue("id")
	if _, err := g.conversation.GetThread(r.Context(), threadID, userID); err != nil {
		g.sendError(w, r, err)
		return
	}

	events := g.conversation.Events()
	if events == nil {
		g.sendJSONError(w, http.StatusNotImplemented, "thread events not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, _ := events.Subscribe(r.Context(), threadID)

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	g.writeSSEEvent(w, "subscribed", map[string]string{"thread_id": threadID})
	flusher.Flush()

	for ev := range ch {
		g.writeSSEEvent(w, string(ev.Event.Kind), ev)
		flusher.Flush()
	}
}

func toSessionResponse(sess *store.ToolSession, expired bool) SessionResponse {
	toolkits := sess.Toolkits
	if toolkits == nil {
		toolkits = []string{}
	}
	workers := sess.Workers.List()
	if workers == nil {
		workers = []store.WorkerConfig{}
	}
	return SessionResponse{
		SessionID:    sess.SessionID,
		SessionURL:   sess.SessionURL,
		Toolkits:     toolkits,
		Workers:      workers,
		CreatedAt:    formatTime(sess.CreatedAt),
		LastActiveAt: formatTime(sess.LastActiveAt),
		Expired:      expired,
	}
}

// handleGetSession handles GET /api/session.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	sess, err := g.sessions.GetByUser(r.Context(), userID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toSessionResponse(sess, g.sessions.IsExpired(sess)))
}

// handlePutSession handles PUT /api/session, creating or refreshing the user's session.
func (g *Gateway) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.SessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	handle, err := g.sessions.CreateOrRefresh(r.Context(), toolsession.SessionSpec{
		UserID:     userID,
		SessionID:  req.SessionID,
		SessionURL: req.SessionURL,
		Toolkits:   req.Toolkits,
	})
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	sess, err := g.sessions.GetByUser(r.Context(), userID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	resp := toSessionResponse(sess, false)
	resp.Created = &handle.Created
	status := http.StatusOK
	if handle.Created {
		status = http.StatusCreated
	}
	g.sendJSON(w, status, resp)
}

// handleDeleteSession handles DELETE /api/session. Deleting a missing session is not an error.
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	result, err := g.sessions.DeleteByUser(r.Context(), userID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, result)
}

// handleUpdateToolkits handles PATCH /api/session/toolkits.
func (g *Gateway) handleUpdateToolkits(w http.ResponseWriter, r *http.Request) {
	var req ToolkitsRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if err := g.sessions.UpdateToolkits(r.Context(), userID, req.Toolkits); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRegisterWorker handles POST /api/session/workers.
func (g *Gateway) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.ID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	wc := store.WorkerConfig{ID: req.ID, Enabled: req.Enabled, Config: req.Config}
	if err := g.sessions.RegisterWorker(r.Context(), userID, wc); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, wc)
}

// handleUpdateWorker handles PUT /api/session/workers/{id}.
func (g *Gateway) handleUpdateWorker(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	workerID := r.PathValue("id")
	if err := g.sessions.UpdateWorkerConfig(r.Context(), userID, workerID, req.Enabled, req.Config); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleStaleConnections handles GET /api/session/stale?older_than_minutes=N.
func (g *Gateway) handleStaleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	olderThan := 0
	if raw := r.URL.Query().Get("older_than_minutes"); raw != "" {
		olderThan, err = strconv.Atoi(raw)
		if err != nil || olderThan < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "older_than_minutes must be a non-negative integer")
			return
		}
	}
	report, err := g.sessions.ListStaleConnections(r.Context(), userID, olderThan)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, report)
}

// handleListTasks handles GET /api/tasks?limit=N, most recent first.
func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	limit := defaultTaskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}
	limit = min(limit, maxTaskLimit)

	tasks, err := g.store.ListBackgroundTasks(r.Context(), userID, limit)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		tr := TaskResponse{
			ID:               t.ID,
			SessionID:        t.SessionID,
			WorkerID:         t.WorkerID,
			TaskType:         t.TaskType,
			Status:           string(t.Status),
			StartedAt:        formatTime(t.StartedAt),
			ToolsUsed:        t.ToolsUsed,
			Result:           t.Result,
			Error:            t.Error,
			Notified:         t.Notified,
			NotificationText: t.NotificationText,
		}
		if t.CompletedAt != nil {
			tr.CompletedAt = formatTime(*t.CompletedAt)
		}
		if tr.ToolsUsed == nil {
			tr.ToolsUsed = []string{}
		}
		out = append(out, tr)
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// handleSaveMemory handles POST /api/memories, used by the external extraction step.
func (g *Gateway) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if err := decodeBody(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := g.requestUser(r, req.UserID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if len(req.Facts) == 0 && len(req.Entities) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "facts or entities are required")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	rec := &store.MemoryRecord{
		ID:         id,
		UserID:     userID,
		ThreadID:   req.ThreadID,
		Timestamp:  ts,
		Priority:   req.Priority,
		Facts:      req.Facts,
		Entities:   req.Entities,
		MessageIDs: req.MessageIDs,
	}
	if err := g.store.SaveMemory(r.Context(), rec); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleDeleteMemory handles DELETE /api/memories/{id}. Memories are only soft-deleted.
func (g *Gateway) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	id := r.PathValue("id")
	rec, err := g.store.GetMemory(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if rec.UserID != userID {
		// Another user's memory is reported as missing.
		g.sendError(w, r, store.ErrNotFound)
		return
	}
	if err := g.store.SoftDeleteMemory(r.Context(), id); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUsageStats handles GET /api/stats/usage?since=RFC3339&until=RFC3339.
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	userID, err := g.requestUser(r, "")
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	filter := store.UsageFilter{UserID: &userID}
	for key, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, key+" must be RFC3339")
			return
		}
		*dst = &t
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, UsageStatsResponse{
		PromptTokens:     stats.PromptTokens,
		CompletionTokens: stats.CompletionTokens,
		TotalTokens:      stats.TotalTokens,
		EstimatedCost:    stats.EstimatedCost,
		RequestCount:     stats.RequestCount,
	})
}
