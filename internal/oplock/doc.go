// Package oplock coordinates long-running background operations: at most
// one running operation per (owner, kind), heartbeat-based zombie
// reclamation, and bounded-latency waiting on an in-flight operation's
// result. The store.OperationStore backing a Runner is the single source of
// truth for the single-flight guarantee; everything in this package defers
// to it rather than duplicating the arbitration in application logic.
package oplock
