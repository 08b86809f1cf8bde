// Package ttlcache provides a thread-safe, TTL-based, size-limited value cache.
//
// Entries expire a fixed duration after they were last stored. When the cache
// is full the oldest entry is evicted in O(1) using an insertion-ordered list.
// A background goroutine removes expired entries once a minute; call Close to
// stop it.
package ttlcache
