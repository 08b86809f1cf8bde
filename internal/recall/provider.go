// ABOUTME: Provider fetches relevant memory records for a thread and user
// ABOUTME: Chooses fast or smart search, serves repeats from a short-lived cache

package recall

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/2389/muse-gateway/internal/store"
	"github.com/2389/muse-gateway/internal/ttlcache"
)

// SearchPath names the strategy that produced a Result.
type SearchPath string

const (
	PathFast   SearchPath = "fast"
	PathSmart  SearchPath = "smart"
	PathCached SearchPath = "cached"
)

// Default tuning, overridable through Options.
const (
	DefaultCacheTTL   = 2 * time.Minute
	DefaultCacheSize  = 10000
	DefaultFastLimit  = 8
	DefaultSmartLimit = 20
)

// fastScanFactor widens the recent-records scan so keyword ranking has candidates to drop.
const fastScanFactor = 4

// MemoryReader is the subset of the memory store the provider reads from.
type MemoryReader interface {
	ListRecentMemories(ctx context.Context, userID string, limit int) ([]*store.MemoryRecord, error)
	SearchMemories(ctx context.Context, userID string, terms []string, limit int) ([]*store.MemoryRecord, error)
}

// Options tunes a Provider. Zero values select the defaults.
type Options struct {
	CacheTTL   time.Duration
	CacheSize  int
	FastLimit  int
	SmartLimit int
}

// Result is the context handed to generation.
type Result struct {
	SearchPath    SearchPath
	MemoriesFound int
	Memories      []*store.MemoryRecord
	Elapsed       time.Duration
}

// Facts flattens the facts of every memory in rank order.
func (r *Result) Facts() []string {
	if r == nil {
		return nil
	}
	var facts []string
	for _, m := range r.Memories {
		facts = append(facts, m.Facts...)
	}
	return facts
}

// Provider implements the context provider.
type Provider struct {
	memories   MemoryReader
	signals    SignalClassifier
	cache      *ttlcache.Cache[*Result]
	fastLimit  int
	smartLimit int
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Provider. A nil signals classifier falls back to HeuristicSignals.
func New(memories MemoryReader, signals SignalClassifier, opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if signals == nil {
		signals = HeuristicSignals{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.FastLimit <= 0 {
		opts.FastLimit = DefaultFastLimit
	}
	if opts.SmartLimit <= 0 {
		opts.SmartLimit = DefaultSmartLimit
	}
	return &Provider{
		memories:   memories,
		signals:    signals,
		cache:      ttlcache.New[*Result](opts.CacheTTL, opts.CacheSize),
		fastLimit:  opts.FastLimit,
		smartLimit: opts.SmartLimit,
		now:        time.Now,
		logger:     logger.With("component", "recall"),
	}
}

// Close stops the cache janitor.
func (p *Provider) Close() {
	p.cache.Close()
}

// ProvideContext returns the memories relevant to message. Errors are returned
// to the caller, which is expected to continue with empty context.
func (p *Provider) ProvideContext(ctx context.Context, threadID, userID, message, messageID string) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("recall: user id required")
	}

	start := p.now()
	key := cacheKey(threadID, userID, message)
	if cached, ok := p.cache.Get(key); ok {
		res := *cached
		res.SearchPath = PathCached
		res.Elapsed = p.now().Sub(start)
		p.logger.Debug("context served from cache",
			"thread_id", threadID,
			"user_id", userID,
			"message_id", messageID,
			"memories_found", res.MemoriesFound,
		)
		return &res, nil
	}

	deep, err := p.signals.NeedsDeepSearch(ctx, message)
	if err != nil {
		p.logger.Warn("signal classification failed, using fast path",
			"thread_id", threadID,
			"error", err,
		)
		deep = false
	}

	terms := extractTerms(message)
	var (
		path     SearchPath
		memories []*store.MemoryRecord
	)
	if deep && len(terms) > 0 {
		path = PathSmart
		memories, err = p.smartSearch(ctx, userID, terms)
	} else {
		path = PathFast
		memories, err = p.fastSearch(ctx, userID, terms)
	}
	if err != nil {
		return nil, fmt.Errorf("recall %s search: %w", path, err)
	}

	res := &Result{
		SearchPath:    path,
		MemoriesFound: len(memories),
		Memories:      memories,
		Elapsed:       p.now().Sub(start),
	}
	p.cache.Set(key, res)

	p.logger.Info("context fetched",
		"thread_id", threadID,
		"user_id", userID,
		"message_id", messageID,
		"search_path", string(path),
		"memories_found", res.MemoriesFound,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// fastSearch ranks the most recent records by keyword overlap. Recency breaks ties,
// so a message without content words yields the latest memories.
func (p *Provider) fastSearch(ctx context.Context, userID string, terms []string) ([]*store.MemoryRecord, error) {
	recent, err := p.memories.ListRecentMemories(ctx, userID, p.fastLimit*fastScanFactor)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(recent))
	for _, rec := range recent {
		scores[rec.ID] = overlap(rec, terms)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return scores[recent[i].ID] > scores[recent[j].ID]
	})

	if len(recent) > p.fastLimit {
		recent = recent[:p.fastLimit]
	}
	return recent, nil
}

// smartSearch runs a term search and orders hits by overlap, then priority, then recency.
func (p *Provider) smartSearch(ctx context.Context, userID string, terms []string) ([]*store.MemoryRecord, error) {
	hits, err := p.memories.SearchMemories(ctx, userID, terms, p.smartLimit*2)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(hits))
	for _, rec := range hits {
		scores[rec.ID] = overlap(rec, terms)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Timestamp.After(b.Timestamp)
	})

	if len(hits) > p.smartLimit {
		hits = hits[:p.smartLimit]
	}
	return hits, nil
}

func cacheKey(threadID, userID, message string) string {
	return threadID + "\x00" + userID + "\x00" + normalizeMessage(message)
}
