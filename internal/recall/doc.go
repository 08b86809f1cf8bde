// ABOUTME: Package recall fetches conversational memory relevant to an inbound message.
// ABOUTME: It picks a fast or smart search path and caches recent fetches per thread.

// Package recall implements the context provider consulted before generation.
//
// Two strategies exist. The fast path scans the user's most recent memory
// records and ranks them by keyword overlap; it needs one indexed query. The
// smart path runs a term search over facts and entities and scores the hits
// by overlap and priority. A SignalClassifier decides which path a message
// takes. Results are cached per thread, user and normalized message for a
// short TTL, and a cache hit is reported with the "cached" search path.
package recall
