// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Consumers depend on the narrow interface they need:
//
//   - ThreadStore: conversation threads and their ownership
//   - MemoryStore: long-term memory records used for context recall
//   - SessionStore: one tool session per user plus its background workers
//   - TaskStore: the background task log written by the worker scheduler
//   - UsageStore: per-step model usage and tool execution telemetry
//
// Store composes all of them. SQLiteStore and MockStore both implement Store.
//
// # Data Models
//
//   - Thread: a conversation owned by exactly one user
//   - MemoryRecord: facts and entities extracted from a past conversation
//   - ToolSession: the user's external tool session with its toolkits and WorkerSet
//   - BackgroundTask: one worker run, completed exactly once
//   - UsageRecord and ToolExecution: append-only telemetry rows
//
// Memory records are never removed. SoftDeleteMemory flags a row and every read
// path excludes flagged rows.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Production: /var/lib/muse-gateway/gateway.db
//   - Development: ~/.local/share/muse/gateway.db
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist (or was soft-deleted)
//   - ErrDuplicateThread: thread already exists
//
// # Testing
//
// Use NewMockStore() for unit tests in other packages:
//
//	s := store.NewMockStore()
//
// Tests in this package run against a real SQLite file under t.TempDir().
package store
