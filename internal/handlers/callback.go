package handlers

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
)

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, cardCallbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	chatID := q.Message.Chat.ID
	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ownerID != chatID {
		h.answer(q.ID, "This card belongs to another chat.")
		return nil
	}

	action := parts[2]
	args := parts[3:]
	if action == "noop" || len(args) == 0 {
		h.answer(q.ID, "")
		return nil
	}

	id, err := strconv.ParseInt(args[len(args)-1], 10, 64)
	if err != nil {
		h.answer(q.ID, "")
		return nil
	}

	sess, err := h.session(ctx, chatID)
	if err != nil {
		h.answer(q.ID, "Something went wrong.")
		return err
	}

	// Session failures are reported to the chat through the notice, so their
	// errors are only logged here.
	var opErr error
	switch action {
	case "up":
		_, opErr = sess.Move(ctx, id, content.Up)
	case "down":
		_, opErr = sess.Move(ctx, id, content.Down)
	case "rm":
		opErr = sess.Remove(ctx, id)
	case "role":
		it, ok := sess.Item(id)
		if !ok {
			opErr = content.ErrNotFound
			break
		}
		role := content.RoleModel
		if it.Role == content.RoleModel {
			role = content.RoleUser
		}
		opErr = sess.SetRole(ctx, id, role)
	case "type":
		_, opErr = sess.ToggleType(ctx, id)
	case "focus":
		h.setFocus(chatID, id)
	case "ar":
		sess.CycleAspect(ctx)
	case "size":
		sess.CycleSize(ctx)
	case "add":
		role := content.RoleUser
		if len(args) >= 2 {
			role = content.ParseRole(args[0])
		}
		it := sess.AddAfter(ctx, role, id)
		h.setFocus(chatID, it.ID)
	case "gen":
		mode, ok := gemini.ParseMode(args[0])
		if !ok {
			break
		}
		// Answer first; the call can outlive the callback's answer window.
		h.answer(q.ID, "Generating…")
		if _, err := sess.Generate(ctx, id, mode); err != nil {
			h.logger.Info().Err(err).Int64("chat_id", chatID).Int64("item", id).Msg("generation did not complete")
		}
		return nil
	case "dl":
		f, err := sess.Export(id)
		if err != nil {
			opErr = err
			break
		}
		if err := h.tg.SendDocument(chatID, f.Name, f.Data, ""); err != nil {
			h.answer(q.ID, "Upload failed.")
			return err
		}
	}

	if opErr != nil {
		h.logger.Debug().Err(opErr).Str("action", action).Int64("item", id).Msg("card action rejected")
	}
	h.answer(q.ID, "")
	return nil
}

func (h *Handler) answer(callbackID, text string) {
	if err := h.tg.AnswerCallback(callbackID, text); err != nil {
		h.logger.Debug().Err(err).Msg("answer callback failed")
	}
}
