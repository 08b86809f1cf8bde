// ABOUTME: Service is the entry point for an inbound user message
// ABOUTME: Ensures the thread exists and is owned by the sender, bumps it, then routes

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/muse-gateway/internal/router"
	"github.com/2389/muse-gateway/internal/store"
	"github.com/2389/muse-gateway/internal/workflow"
)

// DefaultAgentType tags threads created without an explicit agent type.
const DefaultAgentType = "assistant"

var (
	// ErrThreadOwnership is returned when a user posts to another user's thread.
	ErrThreadOwnership = errors.New("thread belongs to another user")

	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is required")

	// ErrMissingUser is returned when no user id is supplied.
	ErrMissingUser = errors.New("user_id is required")
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateThread(ctx context.Context, thread *store.Thread) error
	GetThread(ctx context.Context, id string) (*store.Thread, error)
	TouchThread(ctx context.Context, id string, at time.Time) error
}

// Dispatcher routes a message to a generation path.
type Dispatcher interface {
	Route(ctx context.Context, req router.Request) (*router.Result, error)
}

// Service handles inbound messages.
type Service struct {
	store  ConversationStore
	router Dispatcher
	events *EventBroadcaster
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Service. events may be nil to disable fan-out.
func New(store ConversationStore, dispatcher Dispatcher, events *EventBroadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		router: dispatcher,
		events: events,
		now:    time.Now,
		logger: logger.With("component", "conversation"),
	}
}

// SendRequest is one inbound user message.
type SendRequest struct {
	// ThreadID may be empty to start a new thread.
	ThreadID        string
	PromptMessageID string
	UserID          string
	Message         string
	AgentType       string

	// Emit receives streaming events for the originating client. May be nil.
	Emit workflow.Emitter
}

// SendResponse reports how the message was handled.
type SendResponse struct {
	ThreadID        string
	PromptMessageID string
	ThreadCreated   bool
	Routed          router.Routed
	Response        *workflow.Response
}

// Send records the message against its thread and routes it.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.New().String()
	}
	if req.PromptMessageID == "" {
		req.PromptMessageID = uuid.New().String()
	}

	thread, created, err := s.ensureThread(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchThread(ctx, thread.ID, s.now()); err != nil {
		return nil, fmt.Errorf("updating thread: %w", err)
	}

	res, err := s.router.Route(ctx, router.Request{
		ThreadID:        thread.ID,
		PromptMessageID: req.PromptMessageID,
		UserID:          req.UserID,
		Message:         req.Message,
		Emit:            s.tee(thread.ID, req.Emit),
	})
	if err != nil {
		s.publish(thread.ID, workflow.Event{Kind: KindFailed, Error: err.Error()}, "")
		return nil, err
	}
	s.publish(thread.ID, workflow.Event{Kind: KindRouted}, string(res.Routed))

	return &SendResponse{
		ThreadID:        thread.ID,
		PromptMessageID: req.PromptMessageID,
		ThreadCreated:   created,
		Routed:          res.Routed,
		Response:        res.Response,
	}, nil
}

// GetThread returns thread metadata, enforcing ownership.
func (s *Service) GetThread(ctx context.Context, threadID, userID string) (*store.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, ErrThreadOwnership
	}
	return thread, nil
}

// Events returns the broadcaster, or nil when fan-out is disabled.
func (s *Service) Events() *EventBroadcaster {
	return s.events
}

// ensureThread resolves an existing thread or creates a new one
func (s *Service) ensureThread(ctx context.Context, req *SendRequest) (*store.Thread, bool, error) {
	thread, err := s.store.GetThread(ctx, req.ThreadID)
	if err == nil {
		if thread.UserID != req.UserID {
			return nil, false, ErrThreadOwnership
		}
		return thread, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("thread lookup failed: %w", err)
	}

	agentType := req.AgentType
	if agentType == "" {
		agentType = DefaultAgentType
	}
	now := s.now()
	thread = &store.Thread{
		ID:            req.ThreadID,
		UserID:        req.UserID,
		AgentType:     agentType,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		// another request may have created the thread between lookup and insert
		if errors.Is(err, store.ErrDuplicateThread) {
			existing, lookupErr := s.store.GetThread(ctx, req.ThreadID)
			if lookupErr == nil {
				if existing.UserID != req.UserID {
					return nil, false, ErrThreadOwnership
				}
				s.logger.Debug("found existing thread after race", "thread_id", existing.ID)
				return existing, false, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, false, fmt.Errorf("creating thread: %w", err)
	}

	s.logger.Info("thread created", "thread_id", thread.ID, "user_id", req.UserID, "agent_type", agentType)
	return thread, true, nil
}

// tee forwards events to the caller's emitter and the broadcaster. Broadcast
// failures never abort generation; caller emitter errors do.
func (s *Service) tee(threadID string, emit workflow.Emitter) workflow.Emitter {
	return func(ev workflow.Event) error {
		s.publish(threadID, ev, "")
		if emit == nil {
			return nil
		}
		return emit(ev)
	}
}

func (s *Service) publish(threadID string, ev workflow.Event, routed string) {
	if s.events == nil {
		return
	}
	te := newThreadEvent(threadID, ev)
	te.Routed = routed
	s.events.Publish(te)
}
