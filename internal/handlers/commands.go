package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gemini-composer/internal/content"
)

const helpText = "🧩 Gemini composer\n\n" +
	"Every message card below is one item of the conversation sent to Gemini.\n" +
	"Tap ✏️ on a card, then send text or a photo to fill it.\n" +
	"🎨 / 💬 on a user item sends the whole conversation and inserts the reply after it.\n\n" +
	"Commands:\n" +
	"/new [user|model] - add an item at the end\n" +
	"/key <api key> - store your Gemini API key (the message is deleted)\n" +
	"/cards - send every card again\n" +
	"/clear - start over with one empty item\n" +
	"/help - this text"

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		if err := h.tg.SendText(chatID, helpText); err != nil {
			return err
		}
		sess, err := h.session(ctx, chatID)
		if err != nil {
			return err
		}
		h.resetCards(chatID)
		sess.Refresh()
		return nil
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "new":
		sess, err := h.session(ctx, chatID)
		if err != nil {
			return err
		}
		it := sess.Add(ctx, content.ParseRole(strings.ToLower(args)))
		h.setFocus(chatID, it.ID)
		return nil
	case "clear":
		sess, err := h.session(ctx, chatID)
		if err != nil {
			return err
		}
		it := sess.Clear(ctx)
		h.setFocus(chatID, it.ID)
		return nil
	case "cards":
		sess, err := h.session(ctx, chatID)
		if err != nil {
			return err
		}
		h.resetCards(chatID)
		sess.Refresh()
		return nil
	case "key":
		sess, err := h.session(ctx, chatID)
		if err != nil {
			return err
		}
		// The key should not stay in the chat history.
		h.deleteMessage(chatID, msg.MessageID)
		sess.SetAPIKey(ctx, args)
		if args == "" {
			return h.tg.SendText(chatID, "🔑 API key removed.")
		}
		return h.tg.SendText(chatID, "🔑 API key saved.")
	default:
		return h.tg.SendText(chatID, "Unknown command. Use /help.")
	}
}

// handleText fills the focused text item, or appends a new user item when
// nothing suitable is focused.
func (h *Handler) handleText(ctx context.Context, chatID int64, text string) error {
	sess, err := h.session(ctx, chatID)
	if err != nil {
		return err
	}

	if id := h.focused(chatID); id != 0 {
		if it, ok := sess.Item(id); ok && it.Type == content.TypeText {
			// Failures reach the chat as a notice.
			if err := sess.SetText(ctx, id, text); err != nil {
				h.logger.Debug().Err(err).Int64("item", id).Msg("set text")
			}
			return nil
		}
	}

	it := sess.Insert(ctx, content.Item{Role: content.RoleUser, Type: content.TypeText, Text: text}, 0)
	h.setFocus(chatID, it.ID)
	return nil
}
