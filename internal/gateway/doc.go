// Package gateway wires the orchestration core together and serves it.
//
// # Wiring
//
// New opens the SQLite store and the backend client, then builds the core
// bottom-up: telemetry recorder, recall provider, tool session manager,
// workflow engine, router and conversation service. The background worker
// scheduler is created only when workers are enabled.
//
// # HTTP API
//
// All /api routes are JWT-authenticated when auth.jwt_secret is set. Without a
// secret the acting user comes from the request's user_id.
//
//   - POST /api/route - route a message; SSE when Accept: text/event-stream
//   - GET /api/threads/{id} - thread metadata
//   - GET /api/threads/{id}/events - SSE feed of a thread's events
//   - GET, PUT, DELETE /api/session - the user's tool session
//   - PATCH /api/session/toolkits - replace connected toolkits
//   - POST /api/session/workers - register a background worker
//   - PUT /api/session/workers/{id} - toggle or reconfigure a worker
//   - GET /api/session/stale - stale connection report (read-only)
//   - GET /api/tasks - background task log, most recent first
//   - POST /api/memories, DELETE /api/memories/{id} - memory ingestion and soft delete
//   - GET /api/stats/usage - token usage aggregate
//   - GET /health - liveness check
//   - GET /health/ready - readiness check (a path is enabled and the backend answers)
//
// Errors are JSON {"error": "..."}: no route configured maps to 503, all paths
// failed to 502, missing session or worker to 404, validation to 400.
//
// # gRPC
//
// The gRPC listener serves only the standard health service, reporting
// HealthService as SERVING while the gateway runs.
package gateway
