package handlers

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gemini-composer/internal/content"
	"gemini-composer/internal/media"
	"gemini-composer/internal/telegram"
	"gemini-composer/internal/view"
)

const cardCallbackPrefix = "ci"

// buildCard renders one node. Image items with data become photo cards; the
// caption then carries the header.
func buildCard(chatID int64, n view.Node, sel content.Selection, focused bool, imageElapsed, textElapsed time.Duration) telegram.Card {
	card := telegram.Card{
		Text:     cardText(n, focused),
		Keyboard: cardKeyboard(chatID, n, sel, focused, imageElapsed, textElapsed),
	}

	if n.State.ActivePanel == view.PanelImage && n.Item.HasImage() {
		if data, err := media.Decode(n.Item.ImageData); err == nil && len(data) > 0 {
			card.Photo = data
			card.PhotoName = "image." + media.Extension(n.Item.MimeType)
		}
	}
	return card
}

func cardText(n view.Node, focused bool) string {
	icon := "👤"
	if n.Item.Role == content.RoleModel {
		icon = "🤖"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d/%d · %s · %s", icon, n.Index+1, n.Total, n.Item.Role, n.Item.Type)
	if focused {
		b.WriteString(" · ✏️ editing")
	}
	b.WriteString("\n\n")

	switch n.State.ActivePanel {
	case view.PanelImage:
		if n.Item.HasImage() {
			b.WriteString("🖼 " + n.Item.MimeType)
		} else {
			b.WriteString("🖼 No image yet. Tap ✏️ and send a photo.")
		}
	default:
		if n.Item.HasText() {
			b.WriteString(n.Item.Text)
		} else {
			b.WriteString("(empty) Tap ✏️ and send a message.")
		}
	}
	return b.String()
}

func cardKeyboard(chatID int64, n view.Node, sel content.Selection, focused bool, imageElapsed, textElapsed time.Duration) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(n.Item.ID, 10)
	st := n.State

	focusLabel := "✏️ Edit"
	if focused {
		focusLabel = "✅ Editing"
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button(chatID, "⬆", st.Removable, "up", id),
			button(chatID, "⬇", st.Removable, "down", id),
			button(chatID, "🗑", st.Removable, "rm", id),
		},
		{
			button(chatID, "Role: "+string(n.Item.Role), true, "role", id),
			button(chatID, "Type: "+string(n.Item.Type), true, "type", id),
			button(chatID, focusLabel, true, "focus", id),
		},
	}

	if st.Visible.AspectRatio || st.Visible.ImageSize {
		var row []tgbotapi.InlineKeyboardButton
		if st.Visible.AspectRatio {
			row = append(row, button(chatID, "📐 "+sel.AspectRatio, true, "ar", id))
		}
		if st.Visible.ImageSize {
			row = append(row, button(chatID, "🔍 "+sel.ImageSize, true, "size", id))
		}
		rows = append(rows, row)
	}

	if st.Visible.GenerateImage || st.Visible.GenerateText {
		var row []tgbotapi.InlineKeyboardButton
		if st.Visible.GenerateImage {
			row = append(row, generateButton(chatID, "🎨 Image", "image", id, st.CanGenerate, n.Pending.Image, imageElapsed))
		}
		if st.Visible.GenerateText {
			row = append(row, generateButton(chatID, "💬 Text", "text", id, st.CanGenerate, n.Pending.Text, textElapsed))
		}
		rows = append(rows, row)
	}

	if st.Visible.Download {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			button(chatID, "💾 Download", st.CanDownload, "dl", id),
		})
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		button(chatID, "➕ User", true, "add", "user", id),
		button(chatID, "➕ Model", true, "add", "model", id),
	})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// generateButton shows the running time while the call is outstanding and
// is inert until it settles.
func generateButton(chatID int64, label, mode, id string, enabled, pending bool, elapsed time.Duration) tgbotapi.InlineKeyboardButton {
	if pending {
		return tgbotapi.NewInlineKeyboardButtonData("⏳ "+view.Elapsed(elapsed), cb(chatID, "noop"))
	}
	return button(chatID, label, enabled, "gen", mode, id)
}

// button renders disabled controls too, so the keyboard layout stays stable;
// they carry a noop callback.
func button(chatID int64, label string, enabled bool, parts ...string) tgbotapi.InlineKeyboardButton {
	if !enabled {
		return tgbotapi.NewInlineKeyboardButtonData("· "+label+" ·", cb(chatID, "noop"))
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, cb(chatID, parts...))
}

func cb(chatID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", cardCallbackPrefix, chatID, strings.Join(parts, ":"))
}

// imageSig changes whenever a photo card has to be sent again.
func imageSig(card telegram.Card) uint64 {
	if !card.IsPhoto() {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(card.Photo)
	return h.Sum64()
}
