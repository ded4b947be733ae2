package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kiddoslabs/admission-core/configs"
	"github.com/kiddoslabs/admission-core/internal/core/ports"
)

// CleanupWorker periodically sweeps rate window keys, pruning entries older
// than MaxAge and dropping keys the prune left empty. Redis TTLs already
// evict idle keys; the sweep is a backstop for keys whose TTL keeps getting
// refreshed by a trickle of traffic.
type CleanupWorker struct {
	repo      ports.RateWindowRepository
	keyPrefix string
	cfg       configs.CleanupConfig
	logger    *logrus.Logger
	limiter   *rate.Limiter
	stop      chan struct{}
	done      chan struct{}
}

func NewCleanupWorker(repo ports.RateWindowRepository, keyPrefix string, cfg configs.CleanupConfig, logger *logrus.Logger) *CleanupWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 100
	}
	if cfg.SweepRate <= 0 {
		cfg.SweepRate = 50
	}
	return &CleanupWorker{
		repo:      repo,
		keyPrefix: keyPrefix,
		cfg:       cfg,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SweepRate), cfg.ScanBatch),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (w *CleanupWorker) Start() {
	go w.run()
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (w *CleanupWorker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *CleanupWorker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *CleanupWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Interval/2)
	defer cancel()

	started := time.Now()
	cutoff := float64(started.Add(-w.cfg.MaxAge).UnixNano()) / 1e9

	keys, err := w.repo.ScanKeys(ctx, w.keyPrefix+":*", int64(w.cfg.ScanBatch))
	if err != nil {
		w.logger.WithError(err).Warn("rate window sweep: scan failed")
		return
	}

	var pruned, deleted int64
	for _, key := range keys {
		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.WithError(err).Warn("rate window sweep: aborted")
			return
		}

		n, err := w.repo.PruneBefore(ctx, key, cutoff)
		if err != nil {
			w.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("rate window sweep: prune failed")
			continue
		}
		pruned += n

		remaining, err := w.repo.Count(ctx, key)
		if err != nil {
			continue
		}
		if remaining == 0 {
			if _, err := w.repo.DeleteMatching(ctx, key); err == nil {
				deleted++
			}
		}
	}

	w.logger.WithFields(logrus.Fields{
		"keys":     len(keys),
		"pruned":   pruned,
		"deleted":  deleted,
		"duration": time.Since(started).String(),
	}).Info("rate window sweep complete")
}
