package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-composer/internal/mediagroup"
)

func TestAlbumsFlushedAfterShutdownStillRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu      sync.Mutex
		handled []mediagroup.Album
		ctxErrs []error
	)
	workers := newAlbumWorkers(ctx, make(chan struct{}, 2), time.Minute, func(ctx context.Context, a mediagroup.Album) {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, a)
		ctxErrs = append(ctxErrs, ctx.Err())
	})

	agg := mediagroup.New(mediagroup.Options{Debounce: time.Hour, OnFlush: workers.Submit})
	require.True(t, agg.Add(mediagroup.Photo{ChatID: 7, MessageID: 1, MediaGroupID: "g", Caption: "cats", FileID: "a"}))
	require.True(t, agg.Add(mediagroup.Photo{ChatID: 7, MessageID: 2, MediaGroupID: "g", FileID: "b"}))

	cancel()
	agg.FlushAll()
	require.True(t, workers.Drain(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, handled, 1)
	assert.Equal(t, []string{"a", "b"}, handled[0].FileIDs)
	assert.Equal(t, "cats", handled[0].Caption)
	assert.NoError(t, ctxErrs[0], "album context is detached from shutdown")
}

func TestDrainTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	workers := newAlbumWorkers(context.Background(), make(chan struct{}, 1), time.Minute, func(context.Context, mediagroup.Album) {
		<-release
	})
	workers.Submit(mediagroup.Album{ChatID: 1})

	assert.False(t, workers.Drain(20*time.Millisecond))
}
