// Package conversation is the entry point for inbound user messages.
//
// # Service
//
// Service.Send performs the thread bookkeeping that precedes routing:
//
//  1. Look up the thread; create it on the first message, owned by the sender
//  2. Reject the message if the thread belongs to someone else
//  3. Increment the thread's message count and last-message time
//  4. Hand the message to the router and return which path served it
//
// # Event Broadcasting
//
// Streaming events produced while a reply is generated are forwarded to the
// originating client and also published on an EventBroadcaster, so any other
// client watching the same thread sees the reply as it is produced. Routing
// finishes with a "routed" or "failed" event.
package conversation
