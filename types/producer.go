package types

import "context"

/*
Producer is the contract between the cache and the outside world.

The cache itself performs no I/O. When it does not have fresh data for a
key, it runs the caller-supplied Producer (a database call, an API call,
anything asynchronous) and stores whatever it returns.

A Producer may be slow and may fail. Failure never poisons the cache:
the key is simply not written, and the next call runs a fresh Producer.
*/
type Producer func(ctx context.Context) (any, error)

// Kind tells the global hooks which flavor of operation completed.
type Kind string

const (
	// KindQuery is a plain fetch-or-serve lookup.
	KindQuery Kind = "query"

	// KindInfiniteQuery is a paged/infinite lookup. It only differs from
	// KindQuery in which default TTL applies.
	KindInfiniteQuery Kind = "infiniteQuery"

	// KindMutation is an explicit data replacement.
	KindMutation Kind = "mutation"
)

// Result is what the global success/error hooks receive on every fetch
// completion, fetch failure, and mutation.
type Result struct {
	Kind  Kind
	Key   string
	Value any
	Err   error
}

// ResultHook observes operation outcomes. Hooks run on the calling
// goroutine and must be fast.
type ResultHook func(Result)
