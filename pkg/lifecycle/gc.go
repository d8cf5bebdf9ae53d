package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/EGF2/file/pkg/lifecycle/task"
)

// CollectorConfig controls the garbage collector.
type CollectorConfig struct {
	// Interval between sweeps (default 24h)
	Interval time.Duration

	// Retention is how long a standalone asset survives (default 24h)
	Retention time.Duration

	// PageSize bounds each search page (default 100)
	PageSize int

	// DirectCascade makes the collector run the deletion cascade itself
	// after deleting a record. Enable it when the metadata store does not
	// republish deletes as change events.
	DirectCascade bool

	// PageAttempts bounds retries of a failed search page (default 3)
	PageAttempts int

	// RetryMin and RetryMax bound the backoff between page attempts
	RetryMin time.Duration
	RetryMax time.Duration

	// Clock returns the current time (default time.Now)
	Clock func() time.Time
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	if c.Interval <= 0 {
		c.Interval = 24 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.PageAttempts <= 0 {
		c.PageAttempts = 3
	}
	if c.RetryMin <= 0 {
		c.RetryMin = 500 * time.Millisecond
	}
	if c.RetryMax < c.RetryMin {
		c.RetryMax = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// SweepResult is the outcome of one collector run.
type SweepResult struct {
	Cutoff   time.Time
	Found    int
	Deleted  int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// Collector periodically deletes standalone assets older than the
// retention window. An asset is eligible when created_at < now - retention;
// one created exactly at the cutoff survives until the next run.
type Collector struct {
	store   MetadataStore
	search  SearchIndex
	cascade *Cascade
	cfg     CollectorConfig
	logger  *slog.Logger

	mu sync.Mutex // serializes RunOnce

	loopMu sync.Mutex // guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a garbage collector. cascade is only used when
// cfg.DirectCascade is set.
func NewCollector(store MetadataStore, search SearchIndex, cascade *Cascade, cfg CollectorConfig, logger *slog.Logger) *Collector {
	return &Collector{
		store:   store,
		search:  search,
		cascade: cascade,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "gc"),
	}
}

// Config returns the effective configuration.
func (c *Collector) Config() CollectorConfig {
	return c.cfg
}

// Start runs a sweep immediately and then on every interval until Stop is
// called or ctx is done. Starting a running collector is a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.cancel != nil {
		return
	}

	gcCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(gcCtx, done)

	c.logger.Info("Garbage collector started",
		"interval", c.cfg.Interval.String(),
		"retention", c.cfg.Retention.String())
}

// Stop cancels the background loop and waits for an in-flight sweep.
func (c *Collector) Stop() {
	c.loopMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("Garbage collector stopped")
}

func (c *Collector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. Failures on a single asset are logged and
// counted; the sweep moves on to the next one.
func (c *Collector) RunOnce(ctx context.Context) *SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.cfg.Clock()
	result := &SweepResult{Cutoff: start.Add(-c.cfg.Retention)}
	gcRunsTotal.Inc()
	c.logger.Info("Check and remove standalone files", "cutoff", result.Cutoff)

	fetch := func(ctx context.Context, after string) (*SearchResult, error) {
		return c.searchPage(ctx, SearchQuery{
			ObjectType: ObjectTypeFile,
			Filters:    map[string]string{"standalone": "true"},
			Range:      map[string]Range{"created_at": {Lte: result.Cutoff}},
			Count:      c.cfg.PageSize,
			After:      after,
		})
	}
	each := func(ctx context.Context, page *SearchResult) error {
		result.Found += len(page.Results)
		outcomes := task.Map(ctx, page.Results, func(ctx context.Context, id string) (bool, error) {
			return c.collect(ctx, id, result.Cutoff)
		})
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				result.Errors++
				recordFailure("gc", o.Err)
				c.logger.Error("Failed to delete standalone file", "file_id", page.Results[o.Index], "error", o.Err)
			case o.Value:
				result.Deleted++
			default:
				result.Skipped++
			}
		}
		return nil
	}

	if err := ForEachPage(ctx, c.cfg.PageSize, fetch, each); err != nil {
		result.Errors++
		c.logger.Error("Sweep ended early, remaining files wait for the next run", "error", err)
	}

	result.Duration = c.cfg.Clock().Sub(start)
	gcDeletedTotal.Add(float64(result.Deleted))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	c.logger.Info("Sweep finished",
		"found", result.Found,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", result.Duration)
	return result
}

// searchPage queries one page, retrying with jittered exponential backoff.
func (c *Collector) searchPage(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	b := &backoff.Backoff{Min: c.cfg.RetryMin, Max: c.cfg.RetryMax, Factor: 2, Jitter: true}
	for attempt := 1; ; attempt++ {
		page, err := c.search.Search(ctx, q)
		if err == nil {
			return page, nil
		}
		err = classify(err, func(err error) error { return &MetadataError{ID: q.After, Op: "search", Err: err} })
		c.logger.Warn("Search page failed", "after", q.After, "attempt", attempt, "error", err)
		if attempt >= c.cfg.PageAttempts {
			return nil, err
		}
		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// collect deletes one asset after re-checking it against the live record,
// since the search index may lag behind the metadata store. It reports
// whether the asset was deleted.
func (c *Collector) collect(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	entity, err := c.store.GetObject(ctx, id)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, func(err error) error { return &MetadataError{ID: id, Op: "get", Err: err} })
	}
	asset, err := entity.Asset()
	if err != nil {
		return false, &MetadataError{ID: id, Op: "decode", Err: err}
	}
	if !asset.Standalone || (!asset.CreatedAt.IsZero() && !asset.CreatedAt.Before(cutoff)) {
		c.logger.Debug("File no longer eligible", "file_id", id)
		return false, nil
	}

	if err := c.store.DeleteObject(ctx, id); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, classify(err, func(err error) error { return &MetadataError{ID: id, Op: "delete", Err: err} })
	}
	c.logger.Info("Standalone file deleted", "file_id", id)

	if c.cfg.DirectCascade && c.cascade != nil {
		c.cascade.Handle(ctx, asset)
	}
	return true, nil
}
