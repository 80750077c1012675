// Package loader fetches named tables from a data source, normalizes them and
// keeps the result for a fixed time-to-live.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"leasedash/internal/cache"
	"leasedash/internal/core"
	applog "leasedash/internal/log"
	ports "leasedash/internal/sheets"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL matches the dashboard refresh interval.
const DefaultTTL = 5 * time.Minute

// DefaultFetchTimeout bounds a shared source fetch.
const DefaultFetchTimeout = 30 * time.Second

// Loader implements sheets.TableLoader. Within one TTL window repeated loads
// of the same name return the same *core.Table without touching the source.
type Loader struct {
	fetcher ports.TableFetcher
	cache   cache.Cache[*core.Table]
	group   singleflight.Group
	timeout time.Duration
	log     *applog.StructuredLogger
	fetches atomic.Uint64
	failed  atomic.Uint64
}

var _ ports.TableLoader = (*Loader)(nil)

// Options tune a Loader. The zero value uses DefaultTTL and the default logger.
type Options struct {
	TTL     time.Duration
	MaxSize int
	Logger  *applog.Logger
	Clock   func() time.Time
	// FetchTimeout bounds one source fetch; it defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// Stats reports cache and source activity.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Fetches uint64 `json:"fetches"`
	Errors  uint64 `json:"errors"`
	Cached  int    `json:"cached"`
}

func New(fetcher ports.TableFetcher, opts Options) *Loader {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 32
	}
	var cacheOpts []cache.Option
	if opts.Clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(opts.Clock))
	}
	logger := opts.Logger
	if logger == nil {
		logger = &applog.Logger{Logger: slog.Default()}
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Loader{
		fetcher: fetcher,
		cache:   cache.NewLRUCache[*core.Table](maxSize, ttl, cacheOpts...),
		timeout: timeout,
		log:     applog.NewStructuredLogger(logger.WithComponent(applog.ComponentLoader)),
	}
}

// Load returns the normalized table for name. Source failures are wrapped in
// core.ErrSourceUnavailable; a table without a header row yields
// core.ErrEmptyTable. Failures are never cached.
//
// Concurrent loads of one name share a single fetch. The fetch is detached
// from the callers' cancellation and bounded by the fetch timeout; each caller
// stops waiting when its own ctx is done.
func (l *Loader) Load(ctx context.Context, name string) (*core.Table, error) {
	if t, ok := l.cache.Get(name); ok {
		l.log.LogTableLoaded(ctx, name, t.Rows(), len(t.Columns), true)
		return t, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(name, func() (interface{}, error) {
		// Another caller may have filled the cache while we waited for the slot.
		if t, ok := l.cache.Get(name); ok {
			return t, nil
		}
		fetchCtx, cancel := context.WithTimeout(shared, l.timeout)
		defer cancel()
		return l.fetch(fetchCtx, name)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSourceUnavailable, name, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	t := res.Val.(*core.Table)
	l.log.LogTableLoaded(ctx, name, t.Rows(), len(t.Columns), false)
	return t, nil
}

func (l *Loader) fetch(ctx context.Context, name string) (*core.Table, error) {
	l.fetches.Add(1)
	raw, err := l.fetcher.FetchTable(ctx, name)
	if err != nil {
		l.failed.Add(1)
		if errors.Is(err, core.ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSourceUnavailable, name, err)
	}
	t, err := core.Normalize(name, raw)
	if err != nil {
		l.failed.Add(1)
		return nil, err
	}
	l.cache.Set(name, t)
	return t, nil
}

// Invalidate drops the cached copy of name so the next Load refetches it.
func (l *Loader) Invalidate(name string) {
	l.cache.Delete(name)
}

// InvalidateAll empties the cache.
func (l *Loader) InvalidateAll() {
	l.cache.Clear()
}

// CleanExpired lets a cache.Manager purge stale tables.
func (l *Loader) CleanExpired() int {
	return l.cache.CleanExpired()
}

func (l *Loader) Stats() Stats {
	cs := l.cache.Stats()
	return Stats{
		Hits:    cs.Hits,
		Misses:  cs.Misses,
		Fetches: l.fetches.Load(),
		Errors:  l.failed.Load(),
		Cached:  cs.Size,
	}
}
