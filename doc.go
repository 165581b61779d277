// Package keyedstore provides a typed, namespaced convenience layer over
// pluggable string key-value backends.
//
// # Overview
//
// keyedstore wraps a raw Backend (in-memory, SQLite, or Redis) and adds
// what a bare KV facility lacks: a runtime type tag validated per key,
// optional time-based expiration, key namespacing via prefixing, and
// batch writes. Every value is persisted as a small JSON envelope
// recording the value, its type, a strictness flag, and an optional
// expiry timestamp.
//
// # Quick Start
//
//	store, err := keyedstore.New(keyedstore.Session)
//	if err != nil { ... }
//	ctx := context.Background()
//
//	_ = store.Set(ctx, "retries", 3, keyedstore.WithType(keyedstore.TypeInt))
//	v, _ := store.Get(ctx, "retries") // int64(3)
//
// # Strict Mode and Type Carry-Forward
//
// Entries default to strict: a type is required and the value is
// validated on write and re-validated on read. A later Set on the same
// key that omits type/strict inherits them from the previous envelope:
//
//	_ = store.Set(ctx, "n", 1, keyedstore.WithType(keyedstore.TypeInt))
//	_ = store.Set(ctx, "n", 2)   // still int, still strict
//	err = store.Set(ctx, "n", "x") // ErrTypeMismatch
//
// Non-strict entries record the "no-type" sentinel and skip validation.
//
// # Expiration
//
//	_ = store.Set(ctx, "token", "abc",
//		keyedstore.WithType(keyedstore.TypeString),
//		keyedstore.WithExpires("10 min"))
//
// Expiry is lazy: an expired entry stays in the backend until the next
// Get or Has removes it. IsExpired probes without removing.
//
// # Namespaces
//
// NS derives an independent store whose keys live under "name:". A
// namespaced store never reads, writes, or clears keys outside its
// prefix:
//
//	users, _ := store.NS("users")
//	_ = users.Set(ctx, "1001", "Alice", keyedstore.WithType(keyedstore.TypeString))
//
// # Backends
//
// New selects one of two well-known handles: Session (process-lifetime
// memory) or Persistent (shared SQLite file). WithBackend injects any
// Backend implementation instead, including NewRedis for server-backed
// storage or NewMemory as a test fake.
//
// # Error Handling
//
// The package defines sentinel errors for common cases:
//
//	_, err := store.Get(ctx, "missing")
//	if errors.Is(err, keyedstore.ErrNotFound) {
//	    // Handle missing key
//	}
//
// Available errors: ErrNotFound, ErrInvalidArgument, ErrConfiguration,
// ErrTypeMismatch. Corrupt envelopes encountered on read are logged as
// warnings and treated as absence, never surfaced as errors.
package keyedstore
