package storage

import (
	"context"
	"time"

	"github.com/dgellow/idbroker/internal/log"
)

// Purger is implemented by stores whose backend has no native expiry
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// CleanupManager handles periodic removal of expired entries from a Purger
type CleanupManager struct {
	store    Purger
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store Purger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run sweeps until ctx is cancelled or Stop is called. It blocks.
func (cm *CleanupManager) Run(ctx context.Context) error {
	defer close(cm.doneChan)

	log.LogInfoWithFields("cleanup", "Starting state store cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			cm.cleanup(ctx)
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends the loop started by Run and waits for it to finish
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.Logf("State store cleanup stopped")
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.PurgeExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to purge expired entries", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogDebugWithFields("cleanup", "Purged expired entries", map[string]any{
			"count": count,
		})
	}
}
