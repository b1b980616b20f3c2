package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/media"
	"gemini-composer/internal/store"
	"gemini-composer/internal/view"
)

const DefaultTickInterval = 100 * time.Millisecond

type SubmitPolicy string

const (
	// PolicyReject refuses a second generation from the same control while
	// the first is outstanding.
	PolicyReject SubmitPolicy = "reject"
	// PolicyAllow lets calls from the same control run concurrently; every
	// reply is inserted after the originating item.
	PolicyAllow SubmitPolicy = "allow"
)

type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (gemini.Reply, error)
}

// Tick reports the running time of one outstanding generation.
type Tick struct {
	ItemID  int64
	Mode    gemini.Mode
	Elapsed time.Duration
}

type Options struct {
	KV        store.KV
	Generator Generator
	Logger    zerolog.Logger

	// APIKey is used when no credential has been stored yet.
	APIKey string

	Policy         SubmitPolicy
	TickInterval   time.Duration
	RequestTimeout time.Duration
	Now            func() time.Time

	// Callbacks are delivered in order, one at a time, outside the session
	// lock. They may call back into the session.
	OnPatch  func(view.Patch)
	OnNotice func(string)
	OnTick   func(Tick)
}

// Snapshot is a consistent copy of everything a surface renders.
type Snapshot struct {
	Nodes     []view.Node       `json:"items"`
	Selection content.Selection `json:"selection"`
	Notice    string            `json:"notice"`
	HasAPIKey bool              `json:"hasApiKey"`
}

type pendingKey struct {
	id   int64
	mode gemini.Mode
}

type event struct {
	patch  *view.Patch
	notice *string
	tick   *Tick
}

// Session owns one content list and its selection and credential. Every
// mutation is serialized by mu, persisted, then re-synchronized.
type Session struct {
	mu sync.Mutex

	list      *content.List
	ids       *content.IDSource
	selection content.Selection
	apiKey    string
	notice    string
	pending   map[pendingKey]int
	sync      *view.Synchronizer

	outbox   []event
	draining bool

	contents   *store.Contents
	credential *store.Credential
	selections *store.Selections

	gen     Generator
	policy  SubmitPolicy
	tick    time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	onPatch  func(view.Patch)
	onNotice func(string)
	onTick   func(Tick)
}

// Open restores a session from kv. A missing or unreadable content list
// starts as a single empty user item, which is saved immediately.
func Open(ctx context.Context, opts Options) (*Session, error) {
	kv := opts.KV
	if kv == nil {
		kv = store.NewMemory()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	policy := opts.Policy
	if policy != PolicyAllow {
		policy = PolicyReject
	}

	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	s := &Session{
		ids:        content.NewIDSource(now().UnixMilli()),
		pending:    make(map[pendingKey]int),
		sync:       view.NewSynchronizer(),
		contents:   store.NewContents(kv, opts.Logger),
		credential: store.NewCredential(kv),
		selections: store.NewSelections(kv),
		gen:        opts.Generator,
		policy:     policy,
		tick:       tick,
		timeout:    opts.RequestTimeout,
		now:        now,
		logger:     opts.Logger,
		onPatch:    opts.OnPatch,
		onNotice:   opts.OnNotice,
		onTick:     opts.OnTick,
	}

	apiKey, err := s.credential.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load credential")
	}
	if apiKey == "" {
		apiKey = opts.APIKey
	}
	s.apiKey = apiKey

	sel, err := s.selections.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load selection")
	}
	s.selection = sel

	items, ok := s.contents.Load(ctx)
	s.list = content.NewList(s.ids, items)
	if !ok {
		s.contents.Save(ctx, s.list.Items())
	}

	s.logger.Debug().Int("items", s.list.Len()).Bool("restored", ok).Msg("session opened")
	return s, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Nodes:     view.Nodes(s.list.Items(), s.pendingLocked()),
		Selection: s.selection,
		Notice:    s.notice,
		HasAPIKey: s.apiKey != "",
	}
}

func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

func (s *Session) Selection() content.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

func (s *Session) Item(id int64) (content.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Get(id)
}

// Refresh forgets what surfaces have drawn and emits every item again.
func (s *Session) Refresh() {
	s.mu.Lock()
	s.sync.Reset()
	s.queuePatchLocked()
	s.mu.Unlock()
	s.flush()
}

func (s *Session) Add(ctx context.Context, role content.Role) content.Item {
	var it content.Item
	_ = s.mutate(ctx, func() error {
		it = s.list.Append(role)
		return nil
	})
	return it
}

func (s *Session) AddAfter(ctx context.Context, role content.Role, anchorID int64) content.Item {
	var it content.Item
	_ = s.mutate(ctx, func() error {
		it = s.list.InsertAfter(role, anchorID)
		return nil
	})
	return it
}

// Insert places a fully formed item after anchorID, or at the end when the
// anchor is absent. The item always receives a fresh id.
func (s *Session) Insert(ctx context.Context, it content.Item, anchorID int64) content.Item {
	it.ID = 0
	_ = s.mutate(ctx, func() error {
		it = s.list.InsertExisting(it, anchorID)
		return nil
	})
	return it
}

func (s *Session) Remove(ctx context.Context, id int64) error {
	return s.mutate(ctx, func() error {
		return s.list.Remove(id)
	})
}

// Move reports whether the item actually moved.
func (s *Session) Move(ctx context.Context, id int64, dir content.Direction) (bool, error) {
	var moved bool
	err := s.mutate(ctx, func() error {
		var err error
		moved, err = s.list.Move(id, dir)
		return err
	})
	return moved, err
}

func (s *Session) SetRole(ctx context.Context, id int64, role content.Role) error {
	return s.mutate(ctx, func() error {
		return s.list.SetRole(id, role)
	})
}

func (s *Session) SetType(ctx context.Context, id int64, typ content.Type) error {
	return s.mutate(ctx, func() error {
		return s.list.SetType(id, typ)
	})
}

func (s *Session) ToggleType(ctx context.Context, id int64) (content.Type, error) {
	var typ content.Type
	err := s.mutate(ctx, func() error {
		var err error
		typ, err = s.list.ToggleType(id)
		return err
	})
	return typ, err
}

func (s *Session) SetText(ctx context.Context, id int64, text string) error {
	return s.mutate(ctx, func() error {
		return s.list.SetText(id, text)
	})
}

// SetImage encodes raw file bytes and attaches them to the item. Encoding runs
// before the session is locked.
func (s *Session) SetImage(ctx context.Context, id int64, data []byte, declaredMime string) error {
	up, err := media.EncodeUpload(data, declaredMime)
	if err != nil {
		s.fail(err)
		return err
	}
	return s.SetEncodedImage(ctx, id, up.Data, up.MimeType)
}

// SetEncodedImage attaches an already base64-encoded image; empty data clears
// the image.
func (s *Session) SetEncodedImage(ctx context.Context, id int64, data, mimeType string) error {
	return s.mutate(ctx, func() error {
		return s.list.SetImage(id, data, mimeType)
	})
}

// Clear drops every item and starts over with one empty user item.
func (s *Session) Clear(ctx context.Context) content.Item {
	var it content.Item
	_ = s.mutate(ctx, func() error {
		it = s.list.Clear()
		return nil
	})
	return it
}

func (s *Session) CycleAspect(ctx context.Context) content.Selection {
	return s.changeSelection(ctx, content.Selection.NextAspectRatio)
}

func (s *Session) CycleSize(ctx context.Context) content.Selection {
	return s.changeSelection(ctx, content.Selection.NextImageSize)
}

func (s *Session) changeSelection(ctx context.Context, next func(content.Selection) content.Selection) content.Selection {
	s.mu.Lock()
	s.selection = next(s.selection)
	sel := s.selection
	if err := s.selections.Save(ctx, sel); err != nil {
		s.logger.Warn().Err(err).Msg("save selection")
	}
	// Aspect and size labels sit on every user item.
	s.sync.Reset()
	s.queuePatchLocked()
	s.mu.Unlock()
	s.flush()
	return sel
}

// SetAPIKey stores the credential; an empty key removes it.
func (s *Session) SetAPIKey(ctx context.Context, apiKey string) {
	s.mu.Lock()
	if err := s.credential.Save(ctx, apiKey); err != nil {
		s.logger.Warn().Err(err).Msg("save credential")
	}
	s.apiKey = strings.TrimSpace(apiKey)
	s.mu.Unlock()
}

func (s *Session) HasAPIKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey != ""
}

// Export returns the download payload of a model item.
func (s *Session) Export(id int64) (media.File, error) {
	s.mu.Lock()
	it, ok := s.list.Get(id)
	s.mu.Unlock()
	if !ok {
		s.fail(content.ErrNotFound)
		return media.File{}, content.ErrNotFound
	}

	f, err := media.Export(it, s.now())
	if err != nil {
		s.fail(err)
		return media.File{}, err
	}
	return f, nil
}

// mutate applies fn under the lock. On success the list is saved and the
// resulting patch emitted; on failure the notice is set and nothing else
// changes.
func (s *Session) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.setNoticeLocked(Message(err))
		s.mu.Unlock()
		s.flush()
		return err
	}
	s.saveLocked(ctx)
	s.queuePatchLocked()
	s.mu.Unlock()
	s.flush()
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.setNoticeLocked(Message(err))
	s.mu.Unlock()
	s.flush()
}

func (s *Session) saveLocked(ctx context.Context) {
	s.contents.Save(context.WithoutCancel(ctx), s.list.Items())
}

func (s *Session) setNoticeLocked(notice string) {
	if notice == s.notice {
		return
	}
	s.notice = notice
	s.outbox = append(s.outbox, event{notice: &notice})
}

func (s *Session) queuePatchLocked() {
	patch := s.sync.Sync(s.list.Items(), s.pendingLocked())
	if patch.Empty() {
		return
	}
	s.outbox = append(s.outbox, event{patch: &patch})
}

func (s *Session) pendingLocked() map[int64]view.Pending {
	if len(s.pending) == 0 {
		return nil
	}
	out := make(map[int64]view.Pending, len(s.pending))
	for key := range s.pending {
		p := out[key.id]
		switch key.mode {
		case gemini.ModeImage:
			p.Image = true
		default:
			p.Text = true
		}
		out[key.id] = p
	}
	return out
}

// flush delivers queued events in order. Only one goroutine drains at a time;
// events queued meanwhile, including from inside a callback, are picked up by
// the active drainer.
func (s *Session) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		ev := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
		s.deliver(ev)
		s.mu.Lock()
	}
	s.outbox = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Session) deliver(ev event) {
	switch {
	case ev.patch != nil && s.onPatch != nil:
		s.onPatch(*ev.patch)
	case ev.notice != nil && s.onNotice != nil:
		s.onNotice(*ev.notice)
	case ev.tick != nil && s.onTick != nil:
		s.onTick(*ev.tick)
	}
}
