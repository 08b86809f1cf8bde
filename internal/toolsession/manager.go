// ABOUTME: Manager creates, refreshes, patches and deletes per-user tool sessions
// ABOUTME: Worker configs are edited by id; unknown sessions or workers leave state untouched

package toolsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/2389/muse-gateway/internal/store"
)

var (
	// ErrSessionNotFound is returned when the user has no tool session.
	ErrSessionNotFound = errors.New("tool session not found")

	// ErrWorkerNotFound is returned when a worker id is not in the user's session.
	ErrWorkerNotFound = errors.New("background worker not found")

	// ErrNoConnectionProvider is returned by ListStaleConnections when no provider is wired.
	ErrNoConnectionProvider = errors.New("no connection provider configured")

	// ErrNoSessionOpener is returned by Acquire when no opener is wired.
	ErrNoSessionOpener = errors.New("no session opener configured")
)

const (
	DefaultExpiry     = 7 * 24 * time.Hour
	DefaultStaleAfter = 10 * time.Minute
)

// SessionOpener opens a session in the external tool environment.
type SessionOpener interface {
	OpenSession(ctx context.Context, userID string, toolkits []string) (*OpenedSession, error)
}

// OpenedSession is the external handle returned by a SessionOpener.
type OpenedSession struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	Expiry     time.Duration
	StaleAfter time.Duration
}

// Manager owns the tool session lifecycle.
type Manager struct {
	sessions    store.SessionStore
	opener      SessionOpener
	connections ConnectionProvider
	expiry      time.Duration
	staleAfter  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Manager. opener and connections may be nil; the operations
// that need them then fail with ErrNoSessionOpener or ErrNoConnectionProvider.
func New(sessions store.SessionStore, opener SessionOpener, connections ConnectionProvider, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Manager{
		sessions:    sessions,
		opener:      opener,
		connections: connections,
		expiry:      opts.Expiry,
		staleAfter:  opts.StaleAfter,
		now:         time.Now,
		logger:      logger.With("component", "toolsession"),
	}
}

// SessionSpec is the input to CreateOrRefresh. Zero timestamps default to now.
type SessionSpec struct {
	UserID       string
	SessionID    string
	SessionURL   string
	Toolkits     []string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Handle identifies the user's session after CreateOrRefresh.
type Handle struct {
	UserID       string
	SessionID    string
	SessionURL   string
	Toolkits     []string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Created      bool
}

// CreateOrRefresh inserts the user's session or patches the existing one in place.
// Repeated calls for the same user never create a second session.
func (m *Manager) CreateOrRefresh(ctx context.Context, spec SessionSpec) (*Handle, error) {
	if spec.UserID == "" {
		return nil, errors.New("user id required")
	}
	if spec.SessionID == "" {
		return nil, errors.New("session id required")
	}

	now := m.now()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	if spec.LastActiveAt.IsZero() {
		spec.LastActiveAt = now
	}

	existing, err := m.sessions.GetToolSession(ctx, spec.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up tool session: %w", err)
	}

	toolkits := normalizeToolkits(spec.Toolkits)
	sess := &store.ToolSession{
		UserID:       spec.UserID,
		SessionID:    spec.SessionID,
		SessionURL:   spec.SessionURL,
		Toolkits:     toolkits,
		Workers:      store.NewWorkerSet(),
		CreatedAt:    spec.CreatedAt,
		LastActiveAt: spec.LastActiveAt,
	}
	if err := m.sessions.UpsertToolSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving tool session: %w", err)
	}

	handle := &Handle{
		UserID:       spec.UserID,
		SessionID:    spec.SessionID,
		SessionURL:   spec.SessionURL,
		Toolkits:     toolkits,
		CreatedAt:    spec.CreatedAt,
		LastActiveAt: spec.LastActiveAt,
		Created:      existing == nil,
	}
	if existing != nil {
		handle.CreatedAt = existing.CreatedAt
		m.logger.Debug("tool session refreshed",
			"user_id", spec.UserID,
			"session_id", spec.SessionID,
			"prior_session_id", existing.SessionID,
		)
	} else {
		m.logger.Info("tool session created",
			"user_id", spec.UserID,
			"session_id", spec.SessionID,
			"toolkits", toolkits,
		)
	}
	return handle, nil
}

// GetByUser returns the user's session or ErrSessionNotFound.
func (m *Manager) GetByUser(ctx context.Context, userID string) (*store.ToolSession, error) {
	sess, err := m.sessions.GetToolSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tool session: %w", err)
	}
	return sess, nil
}

// UpdateToolkits replaces the session's toolkit set and marks it active.
func (m *Manager) UpdateToolkits(ctx context.Context, userID string, toolkits []string) error {
	err := m.sessions.UpdateToolkits(ctx, userID, normalizeToolkits(toolkits), m.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("updating toolkits: %w", err)
	}
	return nil
}

// UpdateWorkerConfig replaces the enabled flag and config of one worker.
// Other workers are untouched and the session's last-active time is not bumped.
func (m *Manager) UpdateWorkerConfig(ctx context.Context, userID, workerID string, enabled bool, config json.RawMessage) error {
	sess, err := m.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	workers := sess.Workers.Clone()
	if !workers.Update(workerID, enabled, config) {
		return fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	if err := m.saveWorkers(ctx, userID, workers); err != nil {
		return err
	}

	m.logger.Info("worker config updated",
		"user_id", userID,
		"worker_id", workerID,
		"enabled", enabled,
	)
	return nil
}

// RegisterWorker adds a worker to the session, or replaces the entry with the same id.
func (m *Manager) RegisterWorker(ctx context.Context, userID string, worker store.WorkerConfig) error {
	if worker.ID == "" {
		return errors.New("worker id required")
	}
	sess, err := m.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	workers := sess.Workers.Clone()
	workers.Put(worker)
	return m.saveWorkers(ctx, userID, workers)
}

func (m *Manager) saveWorkers(ctx context.Context, userID string, workers *store.WorkerSet) error {
	err := m.sessions.SaveWorkers(ctx, userID, workers)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("saving workers: %w", err)
	}
	return nil
}

// DeleteResult reports the outcome of DeleteByUser.
type DeleteResult struct {
	Deleted        bool   `json:"deleted"`
	PriorSessionID string `json:"prior_session_id,omitempty"`
}

// DeleteByUser removes the user's session. Deleting a missing session is not an error.
func (m *Manager) DeleteByUser(ctx context.Context, userID string) (*DeleteResult, error) {
	prior, err := m.sessions.DeleteToolSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &DeleteResult{Deleted: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deleting tool session: %w", err)
	}

	m.logger.Info("tool session deleted", "user_id", userID, "prior_session_id", prior)
	return &DeleteResult{Deleted: true, PriorSessionID: prior}, nil
}

// IsExpired reports whether the session has been idle longer than the expiry window.
func (m *Manager) IsExpired(sess *store.ToolSession) bool {
	return m.now().Sub(sess.LastSeen()) > m.expiry
}

// Acquire returns a live session covering toolkits. A current session that already
// covers them is refreshed; otherwise the opener is asked for a new one.
func (m *Manager) Acquire(ctx context.Context, userID string, toolkits []string) (*Handle, error) {
	wanted := normalizeToolkits(toolkits)

	existing, err := m.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if existing != nil && !m.IsExpired(existing) && covers(existing.Toolkits, wanted) {
		return m.CreateOrRefresh(ctx, SessionSpec{
			UserID:     userID,
			SessionID:  existing.SessionID,
			SessionURL: existing.SessionURL,
			Toolkits:   existing.Toolkits,
			CreatedAt:  existing.CreatedAt,
		})
	}

	if m.opener == nil {
		return nil, ErrNoSessionOpener
	}
	if existing != nil {
		wanted = normalizeToolkits(append(wanted, existing.Toolkits...))
	}
	opened, err := m.opener.OpenSession(ctx, userID, wanted)
	if err != nil {
		return nil, fmt.Errorf("opening tool session: %w", err)
	}
	return m.CreateOrRefresh(ctx, SessionSpec{
		UserID:     userID,
		SessionID:  opened.SessionID,
		SessionURL: opened.SessionURL,
		Toolkits:   wanted,
	})
}

// normalizeToolkits lowercases, dedupes and sorts toolkit names.
func normalizeToolkits(toolkits []string) []string {
	out := make([]string, 0, len(toolkits))
	for _, t := range toolkits {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func covers(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}
