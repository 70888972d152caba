package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bilipod/internal/models"
)

// Coordinator defaults. The chunk size caps simultaneous outbound transfers
// and is an operational contract with the upstream service, not just a
// tuning knob.
const (
	DefaultChunkSize   = 20
	DefaultMaxAttempts = 3
	DefaultPace        = 5 * time.Second
)

// Fetcher brings one episode to the downloaded state. Satisfied by
// Orchestrator.
type Fetcher interface {
	Fetch(ctx context.Context, ep *models.Episode) bool
}

// Coordinator downloads a set of episodes in bounded concurrent chunks with
// pacing between chunks and an outer retry loop over whole passes.
type Coordinator struct {
	fetcher     Fetcher
	log         *zap.Logger
	chunkSize   int
	maxAttempts int
	limiter     *rate.Limiter
}

func NewCoordinator(fetcher Fetcher, log *zap.Logger) *Coordinator {
	return &Coordinator{
		fetcher:     fetcher,
		log:         log,
		chunkSize:   DefaultChunkSize,
		maxAttempts: DefaultMaxAttempts,
		limiter:     rate.NewLimiter(rate.Every(DefaultPace), 1),
	}
}

// NewCoordinatorWith overrides the chunking parameters. Used by tests and
// by callers with stricter upstream limits.
func NewCoordinatorWith(fetcher Fetcher, log *zap.Logger, chunkSize, maxAttempts int, pace time.Duration) *Coordinator {
	return &Coordinator{
		fetcher:     fetcher,
		log:         log,
		chunkSize:   chunkSize,
		maxAttempts: maxAttempts,
		limiter:     rate.NewLimiter(rate.Every(pace), 1),
	}
}

// Run processes every episode whose status is not downloaded, retrying
// failed ones up to maxAttempts passes. It returns the episodes still
// pending after all attempts and never fails itself; callers inspect the
// returned list and the episode statuses.
func (c *Coordinator) Run(ctx context.Context, episodes []*models.Episode) []*models.Episode {
	pending := make([]*models.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Status != models.StatusDownloaded {
			pending = append(pending, ep)
		}
	}

	for attempt := 1; attempt <= c.maxAttempts && len(pending) > 0; attempt++ {
		c.log.Debug("download pass",
			zap.Int("attempt", attempt), zap.Int("max_attempts", c.maxAttempts),
			zap.Int("episodes", len(pending)))
		pending = c.pass(ctx, pending)
	}

	if len(pending) > 0 {
		ids := make([]string, len(pending))
		for i, ep := range pending {
			ids[i] = ep.Bvid
		}
		c.log.Error("episodes failed to download after all retries",
			zap.Strings("bvids", ids))
		c.log.Info("episodes downloaded",
			zap.Int("count", len(episodes)-len(pending)))
	} else {
		c.log.Info("episodes downloaded", zap.Int("count", len(episodes)))
	}
	return pending
}

// pass runs one chunked pass. Chunks execute strictly in sequence; within a
// chunk all downloads run concurrently and the pass waits for the whole
// chunk before moving on.
func (c *Coordinator) pass(ctx context.Context, episodes []*models.Episode) []*models.Episode {
	var failed []*models.Episode

	for start := 0; start < len(episodes); start += c.chunkSize {
		if err := c.limiter.Wait(ctx); err != nil {
			// Shutdown mid-pass: everything not yet attempted stays pending.
			return append(failed, episodes[start:]...)
		}

		end := start + c.chunkSize
		if end > len(episodes) {
			end = len(episodes)
		}
		chunk := episodes[start:end]

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, ep := range chunk {
			ep := ep
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !c.fetcher.Fetch(ctx, ep) {
					mu.Lock()
					failed = append(failed, ep)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}
	return failed
}
