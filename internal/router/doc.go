// ABOUTME: Package router dispatches one inbound message through context fetch and generation.
// ABOUTME: Primary streaming generation first, then the optional secondary orchestrator.

// Package router implements the per-request dispatch state machine:
//
//	START -> CONTEXT_FETCH -> PRIMARY_ATTEMPT -> DONE(streaming)
//	                                  |
//	                                  v
//	                         SECONDARY_ATTEMPT -> DONE(claude)
//	                                  |
//	                                  v
//	                                FAILED
//
// Context fetch always runs and its failure only empties the context. The
// primary path runs when enabled; its failure, or its being disabled, moves
// on to the secondary path when that is enabled. With neither enabled Route
// fails with ErrNoRouteConfigured before doing any work.
//
// The triviality classifier runs on every request and is logged, but it does
// not gate the context fetch.
package router
