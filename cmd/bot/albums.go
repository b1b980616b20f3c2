package main

import (
	"context"
	"sync"
	"time"

	"gemini-composer/internal/mediagroup"
)

// albumWorkers runs album handlers on the shared update semaphore. Their
// contexts outlive shutdown so albums flushed on exit still land.
type albumWorkers struct {
	base    context.Context
	sem     chan struct{}
	timeout time.Duration
	handle  func(context.Context, mediagroup.Album)
	wg      sync.WaitGroup
}

func newAlbumWorkers(ctx context.Context, sem chan struct{}, timeout time.Duration, handle func(context.Context, mediagroup.Album)) *albumWorkers {
	return &albumWorkers{
		base:    context.WithoutCancel(ctx),
		sem:     sem,
		timeout: timeout,
		handle:  handle,
	}
}

func (w *albumWorkers) Submit(album mediagroup.Album) {
	w.wg.Add(1)
	w.sem <- struct{}{}

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		ctx, cancel := context.WithTimeout(w.base, w.timeout)
		defer cancel()

		w.handle(ctx, album)
	}()
}

// Drain waits up to timeout for submitted albums and reports whether all of
// them finished.
func (w *albumWorkers) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
