// ABOUTME: Cron-driven background worker lane producing BackgroundTask records
// ABOUTME: Ticks fan out per user and never overlap with each other

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/2389/muse-gateway/internal/store"
)

// DefaultSchedule fires a tick every five minutes.
const DefaultSchedule = "*/5 * * * *"

// DefaultMaxParallelUsers bounds how many users' workers run at once in a tick.
const DefaultMaxParallelUsers = 4

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// RunRequest identifies one background worker run.
type RunRequest struct {
	TaskID     string          `json:"task_id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	SessionURL string          `json:"session_url"`
	WorkerID   string          `json:"worker_id"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// RunOutcome is what a worker run produced.
type RunOutcome struct {
	TaskType         string          `json:"task_type"`
	ToolsUsed        []string        `json:"tools_used"`
	Result           json.RawMessage `json:"result,omitempty"`
	NotificationText string          `json:"notification_text,omitempty"`
}

// Runner executes one background worker against the user's tool session.
type Runner interface {
	RunWorker(ctx context.Context, req RunRequest) (*RunOutcome, error)
}

// Notifier delivers a task's notification text to its user.
type Notifier interface {
	Notify(ctx context.Context, userID, taskID, text string) error
}

// TaskStore is the persistence the tick needs.
type TaskStore interface {
	ListToolSessions(ctx context.Context) ([]*store.ToolSession, error)
	CreateBackgroundTask(ctx context.Context, task *store.BackgroundTask) error
	CompleteBackgroundTask(ctx context.Context, id string, c store.TaskCompletion) error
	MarkTaskNotified(ctx context.Context, id string) error
}

// Options configures a Scheduler.
type Options struct {
	Schedule         string
	MaxParallelUsers int
}

// TickReport summarises one tick.
type TickReport struct {
	Sessions  int
	Completed int
	Failed    int
	Notified  int
}

// Scheduler runs background workers on a cron schedule.
type Scheduler struct {
	tasks    TaskStore
	runner   Runner
	notifier Notifier
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New creates a Scheduler. A nil notifier leaves tasks un-notified.
func New(tasks TaskStore, runner Runner, notifier Notifier, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.MaxParallelUsers <= 0 {
		opts.MaxParallelUsers = DefaultMaxParallelUsers
	}
	return &Scheduler{
		tasks:    tasks,
		runner:   runner,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With("component", "worker"),
		now:      time.Now,
	}
}

// Start begins firing ticks on the configured schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(s.opts.Schedule, func() {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("background tick failed", "error", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", s.opts.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("background workers scheduled", "schedule", s.opts.Schedule)
	return nil
}

// Stop cancels any running tick and waits for it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs every enabled worker of every tool session once.
// Individual run failures are recorded on their task and do not fail the tick.
func (s *Scheduler) Tick(ctx context.Context) (*TickReport, error) {
	sessions, err := s.tasks.ListToolSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tool sessions: %w", err)
	}

	var (
		mu     sync.Mutex
		report = &TickReport{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallelUsers)
	for _, sess := range sessions {
		workers := sess.Workers.Enabled()
		if len(workers) == 0 {
			continue
		}
		report.Sessions++
		g.Go(func() error {
			for _, w := range workers {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				status, notified := s.runOne(gctx, sess, w)
				mu.Lock()
				switch status {
				case store.TaskStatusCompleted:
					report.Completed++
				case store.TaskStatusFailed:
					report.Failed++
				}
				if notified {
					report.Notified++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.Debug("background tick finished",
		"sessions", report.Sessions,
		"completed", report.Completed,
		"failed", report.Failed,
		"notified", report.Notified,
	)
	return report, nil
}

// runOne records and executes a single worker run. The returned status is
// empty when the task could not be created.
func (s *Scheduler) runOne(ctx context.Context, sess *store.ToolSession, w store.WorkerConfig) (store.TaskStatus, bool) {
	logger := s.logger.With("user_id", sess.UserID, "worker_id", w.ID)

	task := &store.BackgroundTask{
		ID:        uuid.New().String(),
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		WorkerID:  w.ID,
		TaskType:  w.ID,
		Status:    store.TaskStatusRunning,
		StartedAt: s.now(),
	}
	if err := s.tasks.CreateBackgroundTask(ctx, task); err != nil {
		logger.Error("failed to record background task", "error", err)
		return "", false
	}

	outcome, runErr := s.runner.RunWorker(ctx, RunRequest{
		TaskID:     task.ID,
		UserID:     sess.UserID,
		SessionID:  sess.SessionID,
		SessionURL: sess.SessionURL,
		WorkerID:   w.ID,
		Config:     w.Config,
	})

	completion := store.TaskCompletion{Status: store.TaskStatusCompleted, CompletedAt: s.now()}
	if runErr != nil {
		completion.Status = store.TaskStatusFailed
		completion.Error = runErr.Error()
		logger.Warn("background worker failed", "task_id", task.ID, "error", runErr)
	} else if outcome != nil {
		completion.ToolsUsed = outcome.ToolsUsed
		completion.Result = outcome.Result
		completion.NotificationText = outcome.NotificationText
		logger.Debug("background worker finished",
			"task_id", task.ID,
			"task_type", outcome.TaskType,
			"tools_used", len(outcome.ToolsUsed),
		)
	}

	// Completion is written on a detached context so a shutdown mid-run
	// does not leave the task stuck in running.
	if err := s.tasks.CompleteBackgroundTask(context.WithoutCancel(ctx), task.ID, completion); err != nil {
		logger.Error("failed to complete background task", "task_id", task.ID, "error", err)
		return completion.Status, false
	}

	if completion.NotificationText == "" || s.notifier == nil {
		return completion.Status, false
	}
	if err := s.notifier.Notify(ctx, sess.UserID, task.ID, completion.NotificationText); err != nil {
		logger.Warn("notification failed", "task_id", task.ID, "error", err)
		return completion.Status, false
	}
	if err := s.tasks.MarkTaskNotified(ctx, task.ID); err != nil {
		logger.Warn("failed to mark task notified", "task_id", task.ID, "error", err)
		return completion.Status, false
	}
	return completion.Status, true
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
