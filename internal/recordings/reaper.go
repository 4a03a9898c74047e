package recordings

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voicedrop/backend/internal/logging"
	"github.com/voicedrop/backend/internal/metrics"
)

// ReaperConfig controls the sweep cadence of the blob reaper.
type ReaperConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// Grace keeps freshly written tombstones out of a sweep so the reaper
	// never races the inline delete that is still running.
	Grace time.Duration
	// Batch caps how many tombstones one sweep processes.
	Batch int
}

// Reaper retries audio blob deletions that failed after their recording row
// was removed. Tombstones stay queued until the blob is gone.
type Reaper struct {
	store  Store
	blobs  BlobStore
	cfg    ReaperConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewReaper constructs a background sweeper and starts it.
func NewReaper(store Store, blobs BlobStore, cfg ReaperConfig, logger *slog.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Reaper{
		store:  store,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(1)
	go r.loop()

	return r
}

// Shutdown stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Reaper) Shutdown(ctx context.Context) error {
	r.once.Do(r.cancel)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.ctx)
		}
	}
}

// Sweep processes one batch of tombstones past the grace period and returns
// how many it cleared. Failures are logged and left queued for the next pass.
func (r *Reaper) Sweep(ctx context.Context) int {
	ctx = logging.WithLogger(ctx, r.logger)
	ctx, span := logging.StartSpan(ctx, "recordings.reap")
	defer span.End()

	logger := logging.FromContext(ctx)
	cutoff := time.Now().UTC().Add(-r.cfg.Grace)

	tombstones, err := r.store.ListTombstones(ctx, cutoff, r.cfg.Batch)
	if err != nil {
		logger.Error("list blob tombstones", "error", err)
		return 0
	}

	cleared := 0
	for _, tombstone := range tombstones {
		if ctx.Err() != nil {
			break
		}

		if err := r.blobs.Delete(ctx, tombstone.AudioKey); err != nil {
			metrics.BlobDeleteFailuresTotal.Inc()
			logger.Error("retry audio blob delete", "audioKey", tombstone.AudioKey, "error", err)
			continue
		}
		if err := r.store.ClearTombstone(ctx, tombstone.AudioKey); err != nil {
			logger.Error("clear blob tombstone", "audioKey", tombstone.AudioKey, "error", err)
			continue
		}

		metrics.TombstonesReapedTotal.Inc()
		cleared++
	}

	if cleared > 0 {
		logger.Info("reaped blob tombstones", "count", cleared)
	}
	return cleared
}
