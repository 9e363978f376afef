// Package index provides the local JSON stores that back run discovery
// and name allocation: a bounded run index keyed by identity hash, and
// a versioned name counter with a reserve/commit protocol.
//
// Both stores live in a shared state directory and are written under an
// advisory file lock followed by an atomic rename, so concurrent
// trainers on one machine cannot corrupt them. Readers never take the
// lock; the atomic rename guarantees they always observe a complete
// snapshot.
//
// The lock is best-effort. On platforms without advisory locks, or when
// acquisition times out, writers log a warning and proceed unlocked
// rather than failing the caller.
package index
