package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gemini-composer/internal/content"
	"gemini-composer/internal/mediagroup"
	"gemini-composer/internal/session"
	"gemini-composer/internal/store"
	"gemini-composer/internal/telegram"
	"gemini-composer/internal/view"
)

// Messenger is the part of the Telegram client the handlers use.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendCard(chatID int64, card telegram.Card) (int, error)
	EditCard(chatID int64, messageID int, card telegram.Card) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Options struct {
	Telegram  Messenger
	KV        store.KV
	Generator session.Generator
	Logger    zerolog.Logger

	APIKey         string
	Policy         session.SubmitPolicy
	RequestTimeout time.Duration
	TickInterval   time.Duration
	// TickRender is the minimum gap between elapsed-label edits of one card.
	TickRender time.Duration
}

type Handler struct {
	tg         Messenger
	kv         store.KV
	opts       Options
	logger     zerolog.Logger
	sessions   *session.Registry
	boards     *boards
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	if opts.KV == nil {
		opts.KV = store.NewMemory()
	}
	if opts.TickRender <= 0 {
		opts.TickRender = time.Second
	}

	h := &Handler{
		tg:     opts.Telegram,
		kv:     opts.KV,
		opts:   opts,
		logger: opts.Logger,
		boards: newBoards(),
	}
	h.sessions = session.NewRegistry(h.openSession)
	return h
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, chatID, msg)
	case len(msg.Photo) > 0:
		return h.handlePhoto(ctx, chatID, msg)
	case msg.Document != nil && isImageMime(msg.Document.MimeType):
		return h.handleImageDocument(ctx, chatID, msg)
	case msg.Text != "":
		return h.handleText(ctx, chatID, msg.Text)
	}
	return nil
}

func (h *Handler) session(ctx context.Context, chatID int64) (*session.Session, error) {
	return h.sessions.Get(ctx, chatID)
}

func (h *Handler) openSession(ctx context.Context, chatID int64) (*session.Session, error) {
	sess, err := session.Open(ctx, session.Options{
		KV:             store.NewPrefixed(h.kv, session.Namespace(chatID)),
		Generator:      h.opts.Generator,
		Logger:         h.logger.With().Int64("chat_id", chatID).Logger(),
		APIKey:         h.opts.APIKey,
		Policy:         h.opts.Policy,
		TickInterval:   h.opts.TickInterval,
		RequestTimeout: h.opts.RequestTimeout,
		OnPatch:        func(p view.Patch) { h.renderPatch(chatID, p) },
		OnNotice:       func(n string) { h.sendNotice(chatID, n) },
		OnTick:         func(t session.Tick) { h.renderTick(chatID, t) },
	})
	if err != nil {
		return nil, err
	}
	h.boards.update(chatID, func(b *board) { b.sess = sess })
	return sess, nil
}

func (h *Handler) renderPatch(chatID int64, p view.Patch) {
	h.boards.update(chatID, func(b *board) {
		for _, id := range p.Removed {
			if ref, ok := b.cards[id]; ok {
				h.deleteMessage(chatID, ref.MessageID)
				delete(b.cards, id)
			}
			b.forgetElapsed(id)
			if b.focus == id {
				b.focus = 0
			}
		}

		if len(p.Changed) == 0 || b.sess == nil {
			return
		}
		sel := b.sess.Selection()
		for _, n := range p.Changed {
			if !n.Pending.Any() {
				b.forgetElapsed(n.Item.ID)
			}
			h.renderNodeLocked(chatID, b, n, sel)
		}
	})
}

// renderTick redraws a pending card's elapsed label, at most once per
// TickRender.
func (h *Handler) renderTick(chatID int64, t session.Tick) {
	h.boards.update(chatID, func(b *board) {
		b.elapsed[elapsedKey{t.ItemID, t.Mode}] = t.Elapsed
		if last, ok := b.lastTickAt[t.ItemID]; ok && time.Since(last) < h.opts.TickRender {
			return
		}
		if b.sess == nil {
			return
		}
		b.lastTickAt[t.ItemID] = time.Now()

		snap := b.sess.Snapshot()
		for _, n := range snap.Nodes {
			if n.Item.ID == t.ItemID && n.Pending.Any() {
				h.renderNodeLocked(chatID, b, n, snap.Selection)
				return
			}
		}
	})
}

// rerender redraws the given items from a fresh snapshot, e.g. after a focus
// change that the session does not know about.
func (h *Handler) rerender(chatID int64, ids ...int64) {
	h.boards.update(chatID, func(b *board) {
		if b.sess == nil {
			return
		}
		want := make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		snap := b.sess.Snapshot()
		for _, n := range snap.Nodes {
			if want[n.Item.ID] {
				h.renderNodeLocked(chatID, b, n, snap.Selection)
			}
		}
	})
}

func (h *Handler) renderNodeLocked(chatID int64, b *board, n view.Node, sel content.Selection) {
	imageElapsed, textElapsed := b.elapsedFor(n.Item.ID)
	card := buildCard(chatID, n, sel, b.focus == n.Item.ID, imageElapsed, textElapsed)
	sig := imageSig(card)

	prev, ok := b.cards[n.Item.ID]
	if ok && prev.Photo == card.IsPhoto() && prev.ImageSig == sig {
		err := h.tg.EditCard(chatID, prev.MessageID, card)
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Int64("item", n.Item.ID).Msg("edit card failed, resending")
	}
	if ok {
		h.deleteMessage(chatID, prev.MessageID)
		delete(b.cards, n.Item.ID)
	}

	msgID, err := h.tg.SendCard(chatID, card)
	if err != nil {
		h.logger.Error().Err(err).Int64("item", n.Item.ID).Msg("send card failed")
		return
	}
	b.cards[n.Item.ID] = cardRef{MessageID: msgID, Photo: card.IsPhoto(), ImageSig: sig}
}

func (h *Handler) sendNotice(chatID int64, notice string) {
	if notice == "" {
		return
	}
	if err := h.tg.SendText(chatID, "⚠️ "+notice); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send notice failed")
	}
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	if err := h.tg.DeleteMessage(chatID, messageID); err != nil {
		h.logger.Debug().Err(err).Int("message_id", messageID).Msg("delete message failed")
	}
}

// setFocus makes id the item that incoming text and photos go to. Focusing
// the focused item again clears the focus.
func (h *Handler) setFocus(chatID, id int64) {
	var prev int64
	h.boards.update(chatID, func(b *board) {
		prev = b.focus
		if prev == id {
			b.focus = 0
		} else {
			b.focus = id
		}
	})

	if prev != 0 && prev != id {
		h.rerender(chatID, prev, id)
		return
	}
	h.rerender(chatID, id)
}

func (h *Handler) focused(chatID int64) int64 {
	var id int64
	h.boards.update(chatID, func(b *board) { id = b.focus })
	return id
}

// resetCards forgets and deletes every card so the next render starts over.
func (h *Handler) resetCards(chatID int64) {
	h.boards.update(chatID, func(b *board) {
		for id, ref := range b.cards {
			h.deleteMessage(chatID, ref.MessageID)
			delete(b.cards, id)
		}
	})
}
