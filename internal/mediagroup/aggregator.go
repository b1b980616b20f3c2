package mediagroup

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Photo is one message of a Telegram album.
type Photo struct {
	ChatID       int64
	MessageID    int
	MediaGroupID string
	Caption      string
	FileID       string
}

// Album is a completed media group. Files are in message order, which is
// the order the user picked them in.
type Album struct {
	ChatID  int64
	Caption string
	FileIDs []string
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Album)
}

// Aggregator collects the photos of an album until no new one has arrived
// for the debounce window, then hands the album to OnFlush.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Album)
	groups   map[string]*pendingAlbum
}

type pendingAlbum struct {
	chatID  int64
	caption string
	photos  []Photo
	timer   *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingAlbum),
	}
}

// Add reports false for photos that are not part of an album.
func (a *Aggregator) Add(p Photo) bool {
	if p.MediaGroupID == "" || p.FileID == "" {
		return false
	}

	key := makeKey(p.ChatID, p.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pa, ok := a.groups[key]
	if !ok {
		pa = &pendingAlbum{chatID: p.ChatID}
		a.groups[key] = pa
	}
	pa.photos = append(pa.photos, p)
	if p.Caption != "" {
		pa.caption = p.Caption
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	return true
}

// FlushAll delivers every pending album immediately.
func (a *Aggregator) FlushAll() {
	a.mu.Lock()
	keys := make([]string, 0, len(a.groups))
	for k, pa := range a.groups {
		if pa.timer != nil {
			pa.timer.Stop()
		}
		keys = append(keys, k)
	}
	a.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		a.flush(k)
	}
}

func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(pa.album())
	}
}

func (pa *pendingAlbum) album() Album {
	photos := append([]Photo(nil), pa.photos...)
	sort.SliceStable(photos, func(i, j int) bool { return photos[i].MessageID < photos[j].MessageID })

	out := Album{ChatID: pa.chatID, Caption: pa.caption}
	for _, p := range photos {
		out.FileIDs = append(out.FileIDs, p.FileID)
	}
	return out
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
