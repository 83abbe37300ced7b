// Package cache provides a bounded in-memory key/value store with per-entry
// TTL expiry, a Sweeper that removes expired entries on a schedule, and a
// Memoizer for compute-on-miss lookups.
package cache
