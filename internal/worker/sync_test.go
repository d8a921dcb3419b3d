package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashsync/internal/config"
)

type staticSource struct {
	balances map[string]int64
	err      error
}

func (s *staticSource) GetAllDiamonds(context.Context) (map[string]int64, error) {
	return s.balances, s.err
}

type recordingSink struct {
	mu      sync.Mutex
	batches []int
	ranked  map[string]int64
	err     error
}

func (r *recordingSink) BatchSetDiamonds(_ context.Context, balances map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.ranked == nil {
		r.ranked = make(map[string]int64)
	}
	for id, d := range balances {
		r.ranked[id] = d
	}
	r.batches = append(r.batches, len(balances))
	return nil
}

func (r *recordingSink) Members(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.ranked))
	for id := range r.ranked {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *recordingSink) RemoveUsers(_ context.Context, userIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		delete(r.ranked, id)
	}
	return nil
}

func (r *recordingSink) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncFromDatabaseBatches(t *testing.T) {
	source := &staticSource{balances: map[string]int64{"a": 5, "b": 10, "c": 0, "d": 7, "e": 1}}
	sink := &recordingSink{}
	w := NewSyncWorker(source, sink, &config.SyncConfig{Interval: time.Minute, BatchSize: 2}, discardLogger())

	synced, err := w.SyncFromDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, synced)
	assert.Equal(t, []int{2, 2, 1}, sink.batches)
	assert.Equal(t, source.balances, sink.ranked)
}

func TestSyncFromDatabaseEmpty(t *testing.T) {
	sink := &recordingSink{}
	w := NewSyncWorker(&staticSource{}, sink, &config.SyncConfig{Interval: time.Minute}, discardLogger())

	synced, err := w.SyncFromDatabase(context.Background())
	require.NoError(t, err)
	assert.Zero(t, synced)
	assert.Zero(t, sink.calls())
}

func TestSyncFromDatabasePrunesMissingUsers(t *testing.T) {
	sink := &recordingSink{ranked: map[string]int64{"gone": 900, "a": 1}}
	source := &staticSource{balances: map[string]int64{"a": 5, "b": 3}}
	w := NewSyncWorker(source, sink, &config.SyncConfig{Interval: time.Minute}, discardLogger())

	synced, err := w.SyncFromDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, map[string]int64{"a": 5, "b": 3}, sink.ranked)

	empty := NewSyncWorker(&staticSource{}, sink, &config.SyncConfig{Interval: time.Minute}, discardLogger())
	_, err = empty.SyncFromDatabase(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sink.ranked)
}

func TestSyncFromDatabaseErrors(t *testing.T) {
	boom := errors.New("boom")
	cfg := &config.SyncConfig{Interval: time.Minute}

	w := NewSyncWorker(&staticSource{err: boom}, &recordingSink{}, cfg, discardLogger())
	_, err := w.SyncFromDatabase(context.Background())
	assert.ErrorIs(t, err, boom)

	w = NewSyncWorker(&staticSource{balances: map[string]int64{"a": 1}}, &recordingSink{err: boom}, cfg, discardLogger())
	_, err = w.SyncFromDatabase(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestWorkerStartStop(t *testing.T) {
	sink := &recordingSink{}
	source := &staticSource{balances: map[string]int64{"a": 1}}
	w := NewSyncWorker(source, sink, &config.SyncConfig{Interval: 10 * time.Millisecond}, discardLogger())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	assert.Eventually(t, func() bool { return sink.calls() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}
