// ABOUTME: Package toolsession manages the one external tool session each user owns.
// ABOUTME: It also edits background worker configs and reports stale connections.

// Package toolsession implements the tool-connection session manager.
//
// A user has at most one ToolSession. CreateOrRefresh patches an existing row
// in place rather than inserting a second one, and Acquire layers the external
// session opener on top of it for the tool execution step.
//
// Stale connections are authorization handshakes that were initiated against
// the external provider and never completed. The provider exposes no way to
// delete them, so ListStaleConnections is a read-only report and the stale
// entries are left in place permanently. Downstream code ignores them when it
// deduplicates connections.
//
// Expiry is advisory. IsExpired reports sessions idle for longer than the
// configured window; nothing evicts them.
package toolsession
