package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/krisalay/query-cache/types"
)

/*
Engine is the "brain" of the cache. It owns the BEHAVIOR, not the data.

It decides:
- When a cached entry still counts as fresh
- Which default TTL a query kind gets
- How completions and failures are reported (hooks, metrics, logs)

It does NOT:
- Store data
- Handle sharding or locking
- Run producers or deduplicate them
*/
type Engine struct {

	// DefaultQueryTTL applies to plain queries whose caller did not set
	// an explicit TTL. Zero means such entries never expire.
	DefaultQueryTTL time.Duration

	// DefaultInfiniteQueryTTL applies to infinite (paged) queries the
	// same way.
	DefaultInfiniteQueryTTL time.Duration

	// Metrics is never nil; New substitutes NoopMetrics.
	Metrics types.Metrics

	// Logger is never nil; New substitutes a no-op logger. The logger
	// is owned by whoever constructed the cache; there is no package
	// level or process wide logger anywhere in this module.
	Logger *zap.Logger

	// OnSuccess, when set, observes every successful fetch and every
	// mutation.
	OnSuccess types.ResultHook

	// OnError, when set, observes every producer failure.
	OnError types.ResultHook
}

// New creates an Engine, substituting no-op metrics and logging where
// none were supplied.
func New(defaultQueryTTL, defaultInfiniteQueryTTL time.Duration, metrics types.Metrics, logger *zap.Logger, onSuccess, onError types.ResultHook) *Engine {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		DefaultQueryTTL:         defaultQueryTTL,
		DefaultInfiniteQueryTTL: defaultInfiniteQueryTTL,
		Metrics:                 metrics,
		Logger:                  logger,
		OnSuccess:               onSuccess,
		OnError:                 onError,
	}
}

/*
IsAlive decides whether data written at lastWrite with the given TTL is
still fresh.

BEHAVIOR:
---------
- ttl <= 0        → alive forever (no TTL was set)
- otherwise alive → while now − lastWrite < ttl
*/
func IsAlive(lastWrite time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return time.Since(lastWrite) < ttl
}

// Alive applies IsAlive to a stored entry. Nil entries are never alive.
func (e *Engine) Alive(ent *types.CacheEntry) bool {
	return ent != nil && IsAlive(ent.LastWriteTime, ent.TTL)
}

// TTLFor returns the default TTL for a query kind.
func (e *Engine) TTLFor(kind types.Kind) time.Duration {
	if kind == types.KindInfiniteQuery {
		return e.DefaultInfiniteQueryTTL
	}
	return e.DefaultQueryTTL
}

// ReportSuccess records a completed fetch or mutation: debug log,
// then the global success hook, if any.
func (e *Engine) ReportSuccess(kind types.Kind, key string, value any) {
	e.Logger.Debug("operation completed",
		zap.String("kind", string(kind)),
		zap.String("key", key),
	)
	if e.OnSuccess != nil {
		e.OnSuccess(types.Result{Kind: kind, Key: key, Value: value})
	}
}

// ReportError records a producer failure: debug log, then the global
// error hook, if any. Failures are local to the calling operation; they
// never travel through the event buses.
func (e *Engine) ReportError(kind types.Kind, key string, err error) {
	e.Logger.Debug("operation failed",
		zap.String("kind", string(kind)),
		zap.String("key", key),
		zap.Error(err),
	)
	if e.OnError != nil {
		e.OnError(types.Result{Kind: kind, Key: key, Err: err})
	}
}
