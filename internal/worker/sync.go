package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clashsync/internal/config"
)

// BalanceSource provides the diamond balances of record
type BalanceSource interface {
	GetAllDiamonds(ctx context.Context) (map[string]int64, error)
}

// RankingSink receives balances to rank
type RankingSink interface {
	BatchSetDiamonds(ctx context.Context, balances map[string]int64) error
	Members(ctx context.Context) ([]string, error)
	RemoveUsers(ctx context.Context, userIDs ...string) error
}

// SyncWorker periodically reloads the Redis ranking from PostgreSQL
type SyncWorker struct {
	source  BalanceSource
	ranking RankingSink
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source BalanceSource,
	ranking RankingSink,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		source:  source,
		ranking: ranking,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single sync cycle and logs the outcome
func (w *SyncWorker) RunOnce(ctx context.Context) {
	startTime := time.Now()

	synced, err := w.SyncFromDatabase(ctx)
	if err != nil {
		w.logger.Error("sync cycle failed", "error", err)
		return
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"synced", synced,
	)
}

// SyncFromDatabase copies every balance from PostgreSQL into the ranking in
// batches, drops ranked users that no longer exist, and returns how many
// users were written. It is used at startup and by each cycle.
func (w *SyncWorker) SyncFromDatabase(ctx context.Context) (int, error) {
	balances, err := w.source.GetAllDiamonds(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading balances: %w", err)
	}

	synced, err := w.writeBalances(ctx, balances)
	if err != nil {
		return synced, err
	}

	pruned, err := w.prune(ctx, balances)
	if err != nil {
		return synced, err
	}

	w.logger.Debug("synced ranking from database", "user_count", synced, "pruned", pruned)
	return synced, nil
}

func (w *SyncWorker) writeBalances(ctx context.Context, balances map[string]int64) (int, error) {
	if len(balances) == 0 {
		return 0, nil
	}

	// Process in batches to avoid overwhelming Redis
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	synced := 0

	for userID, diamonds := range balances {
		batch[userID] = diamonds

		if len(batch) >= batchSize {
			if err := w.ranking.BatchSetDiamonds(ctx, batch); err != nil {
				return synced, fmt.Errorf("writing ranking batch: %w", err)
			}
			synced += len(batch)
			batch = make(map[string]int64, batchSize)
		}
	}

	// Process remaining batch
	if len(batch) > 0 {
		if err := w.ranking.BatchSetDiamonds(ctx, batch); err != nil {
			return synced, fmt.Errorf("writing ranking batch: %w", err)
		}
		synced += len(batch)
	}
	return synced, nil
}

// prune removes ranked users missing from balances
func (w *SyncWorker) prune(ctx context.Context, balances map[string]int64) (int, error) {
	members, err := w.ranking.Members(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing ranked users: %w", err)
	}

	var stale []string
	for _, id := range members {
		if _, ok := balances[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := w.ranking.RemoveUsers(ctx, stale...); err != nil {
		return 0, fmt.Errorf("pruning ranking: %w", err)
	}
	return len(stale), nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
