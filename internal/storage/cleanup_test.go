package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestCleanupManagerSweepsPeriodically(t *testing.T) {
	p := &countingPurger{}
	cm := NewCleanupManager(p, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- cm.Run(context.Background()) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cm.Stop()
	assert.NoError(t, <-done)
}

func TestCleanupManagerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cm := NewCleanupManager(NewMemoryStore(), time.Hour)

	done := make(chan error, 1)
	go func() { done <- cm.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop after cancel")
	}
}

func TestCleanupManagerRemovesExpiredMemoryEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	cm := NewCleanupManager(s, time.Hour)
	go func() { _ = cm.Run(ctx) }()
	cm.Stop()

	assert.Equal(t, 0, s.Len(), "Stop runs a final sweep")
}
