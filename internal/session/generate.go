package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/view"
)

var (
	ErrBusy            = errors.New("a generation from this item is already running")
	ErrCannotGenerate  = errors.New("this item cannot start a generation")
	ErrNoGenerator     = errors.New("generation is not configured")
	errUnsupportedMode = errors.New("unknown generation mode")
)

// Generate sends the whole conversation and inserts the reply right after the
// item whose control triggered it. It blocks until the call settles. Failures
// set the notice and leave the list untouched.
func (s *Session) Generate(ctx context.Context, id int64, mode gemini.Mode) (content.Item, error) {
	if _, ok := gemini.ParseMode(string(mode)); !ok {
		s.fail(errUnsupportedMode)
		return content.Item{}, errUnsupportedMode
	}

	s.mu.Lock()
	req, err := s.prepareLocked(id, mode)
	if err != nil {
		s.setNoticeLocked(Message(err))
		s.mu.Unlock()
		s.flush()
		return content.Item{}, err
	}

	key := pendingKey{id: id, mode: mode}
	s.pending[key]++
	s.setNoticeLocked("")
	s.queuePatchLocked()
	s.mu.Unlock()
	s.flush()

	log := s.logger.With().Int64("item", id).Str("mode", string(mode)).Logger()
	log.Info().Int("turns", len(req.Turns)).Msg("generation started")

	start := s.now()
	stop := s.startTicker(id, mode, start)

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.gen.Generate(callCtx, req)
	stop()

	s.mu.Lock()
	if s.pending[key]--; s.pending[key] <= 0 {
		delete(s.pending, key)
	}

	if err != nil {
		s.setNoticeLocked(Message(err))
		s.queuePatchLocked()
		s.mu.Unlock()
		s.flush()
		log.Warn().Err(err).Dur("took", s.now().Sub(start)).Msg("generation failed")
		return content.Item{}, err
	}

	it := s.list.InsertExisting(reply.Item(s.ids.Next()), id)
	s.saveLocked(ctx)
	s.queuePatchLocked()
	s.mu.Unlock()
	s.flush()

	log.Info().Int64("reply", it.ID).Dur("took", s.now().Sub(start)).Msg("generation finished")
	return it, nil
}

// prepareLocked runs every check that must pass before anything is marked
// outstanding, then snapshots the request.
func (s *Session) prepareLocked(id int64, mode gemini.Mode) (gemini.Request, error) {
	it, ok := s.list.Get(id)
	if !ok {
		return gemini.Request{}, content.ErrNotFound
	}
	if s.gen == nil {
		return gemini.Request{}, ErrNoGenerator
	}
	if strings.TrimSpace(s.apiKey) == "" {
		return gemini.Request{}, gemini.ErrMissingAPIKey
	}
	if !view.Derive(it, s.list.Len()).CanGenerate {
		return gemini.Request{}, ErrCannotGenerate
	}
	if s.policy == PolicyReject && s.pending[pendingKey{id: id, mode: mode}] > 0 {
		return gemini.Request{}, ErrBusy
	}

	turns := gemini.BuildTurns(s.list.Items())
	if len(turns) == 0 {
		return gemini.Request{}, gemini.ErrEmptyConversation
	}

	return gemini.Request{
		APIKey:      s.apiKey,
		Turns:       turns,
		Mode:        mode,
		AspectRatio: s.selection.AspectRatio,
		ImageSize:   s.selection.ImageSize,
	}, nil
}

// startTicker reports elapsed time until the returned stop func is called.
// stop waits for the ticker goroutine, so no tick is queued after it returns.
func (s *Session) startTicker(id int64, mode gemini.Mode, start time.Time) func() {
	if s.onTick == nil {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(s.tick)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				tick := Tick{ItemID: id, Mode: mode, Elapsed: s.now().Sub(start)}
				s.mu.Lock()
				s.outbox = append(s.outbox, event{tick: &tick})
				s.mu.Unlock()
				s.flush()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
