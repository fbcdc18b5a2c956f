// Package tiercache implements one cache contract over many storage engines
// and composes them into a multi-tier (waterfall) cache.
//
// Components:
//   - Backend[V]: get/set/delete/has/clean/flush plus batch forms, with TTL.
//     Implementations live under backend/ (memory, tempfile, sqlstore, redis,
//     memcache, shm, ristretto, bigcache, null).
//   - AtomicCounter: optional increment/decrement with create-on-first-use.
//     Discover it with AsCounter.
//   - TieredCache[V]: ordered tiers. Reads fall through tiers until a hit,
//     writes fan out to every tier.
//   - simplecache: a loosely typed facade that normalizes keys, TTLs and
//     steps (see NormalizeKey, TTLResolver, ResolveStep).
//
// Result rules for TieredCache:
//
//	Get / GetMultiple      first hit in tier order, no backfill unless Promote
//	Set / SetMultiple      true if ANY tier accepted the write
//	Delete / Clean / Flush true only if EVERY tier succeeded
//
// Operational failures inside a backend are logged and become false.
// Malformed input (keys, ttl, step) is returned as an error.
package tiercache
