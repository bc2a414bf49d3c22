// Package rescache implements the write-back resource cache: a blob-store
// and shared-cache protocol that absorbs writes into the cache tier and
// reconciles them to durable blob storage on a deferred schedule.
package rescache

import "time"

// Result is the materialized view of one resource across both tiers. Its
// Synced and Exists fields make it effectively a 4-state tag: absent
// synced, absent dirty (tombstone), present synced, present dirty.
//
// CreatedAt and UpdatedAt are the bottom value (time.Time{}) whenever
// Exists is false; they never appear bottom when Exists is true.
type Result struct {
	// Body holds the resource's text contents. Empty when the result is
	// metadata-only or the resource does not exist.
	Body string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Synced reports whether the cache tier believes the blob tier
	// matches this value.
	Synced bool

	// Exists reports whether the resource exists in the logical store.
	Exists bool
}

// absentResult builds the tombstone or synthetic-negative shape: no body,
// bottom timestamps, and the given synced flag.
func absentResult(synced bool) Result {
	return Result{Synced: synced, Exists: false}
}
