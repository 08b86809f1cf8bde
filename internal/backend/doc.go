// Package backend is the JSON-over-HTTP client for the model and tool
// service that sits behind the gateway.
//
// One Client satisfies every collaborator interface the orchestration core
// declares: workflow steps, the secondary generation path, recall signals,
// tool sessions, stale-connection listing and background worker runs. The
// wire types in wire.go are shared with cmd/fake-backend.
package backend
