package handlers

import (
	"sync"
	"time"

	"gemini-composer/internal/gemini"
	"gemini-composer/internal/session"
)

// cardRef is what the bot remembers about one item's message.
type cardRef struct {
	MessageID int
	Photo     bool
	ImageSig  uint64
}

// board is the per-chat rendering state. mu is held for the whole of a render
// so two renders of one chat never interleave their sends.
type board struct {
	mu sync.Mutex

	sess  *session.Session
	cards map[int64]cardRef
	focus int64

	elapsed    map[elapsedKey]time.Duration
	lastTickAt map[int64]time.Time
}

type elapsedKey struct {
	id   int64
	mode gemini.Mode
}

type boards struct {
	mu sync.Mutex
	m  map[int64]*board
}

func newBoards() *boards {
	return &boards{m: make(map[int64]*board)}
}

func (s *boards) get(chatID int64) *board {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.m[chatID]; ok {
		return b
	}
	b := &board{
		cards:      make(map[int64]cardRef),
		elapsed:    make(map[elapsedKey]time.Duration),
		lastTickAt: make(map[int64]time.Time),
	}
	s.m[chatID] = b
	return b
}

// update runs fn with the board locked.
func (s *boards) update(chatID int64, fn func(*board)) {
	b := s.get(chatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *board) elapsedFor(id int64) (image, text time.Duration) {
	return b.elapsed[elapsedKey{id, gemini.ModeImage}], b.elapsed[elapsedKey{id, gemini.ModeText}]
}

func (b *board) forgetElapsed(id int64) {
	delete(b.elapsed, elapsedKey{id, gemini.ModeImage})
	delete(b.elapsed, elapsedKey{id, gemini.ModeText})
	delete(b.lastTickAt, id)
}
