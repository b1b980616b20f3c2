package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"gemini-composer/internal/content"
	"gemini-composer/internal/media"
	"gemini-composer/internal/mediagroup"
)

type download struct {
	data     []byte
	mimeType string
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Photo{
			ChatID:       chatID,
			MessageID:    msg.MessageID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	return h.attachImages(ctx, chatID, []string{fileID}, msg.Caption, true)
}

// handleImageDocument accepts images sent as files, which keep their
// original bytes and MIME type.
func (h *Handler) handleImageDocument(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	return h.attachImages(ctx, chatID, []string{msg.Document.FileID}, msg.Caption, true)
}

// HandleAlbum appends one image item per photo, in album order. A caption
// becomes a text item after the last photo.
func (h *Handler) HandleAlbum(ctx context.Context, album mediagroup.Album) {
	if err := h.attachImages(ctx, album.ChatID, album.FileIDs, album.Caption, false); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", album.ChatID).Msg("album processing failed")
	}
}

// attachImages downloads every file, then either fills the focused image item
// (single photo only) or inserts new user image items.
func (h *Handler) attachImages(ctx context.Context, chatID int64, fileIDs []string, caption string, useFocus bool) error {
	sess, err := h.session(ctx, chatID)
	if err != nil {
		return err
	}

	downloads := make([]download, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			downloads[i] = download{data: data, mimeType: mimeType}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("photo download failed")
		return h.tg.SendText(chatID, "⚠️ Could not download the photo.")
	}

	uploads := make([]media.Upload, 0, len(downloads))
	for _, d := range downloads {
		up, err := media.EncodeUpload(d.data, d.mimeType)
		if err != nil {
			return h.tg.SendText(chatID, "⚠️ That file is not an image.")
		}
		uploads = append(uploads, up)
	}

	if useFocus && len(uploads) == 1 {
		if id := h.focused(chatID); id != 0 {
			if it, ok := sess.Item(id); ok && it.Type == content.TypeImage {
				if err := sess.SetEncodedImage(ctx, id, uploads[0].Data, uploads[0].MimeType); err != nil {
					h.logger.Debug().Err(err).Int64("item", id).Msg("set image")
				}
				return h.captionItem(ctx, chatID, caption, id)
			}
		}
	}

	var last content.Item
	for _, up := range uploads {
		last = sess.Insert(ctx, content.Item{
			Role:      content.RoleUser,
			Type:      content.TypeImage,
			ImageData: up.Data,
			MimeType:  up.MimeType,
		}, 0)
	}
	return h.captionItem(ctx, chatID, caption, last.ID)
}

func (h *Handler) captionItem(ctx context.Context, chatID int64, caption string, after int64) error {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil
	}
	sess, err := h.session(ctx, chatID)
	if err != nil {
		return err
	}
	sess.Insert(ctx, content.Item{Role: content.RoleUser, Type: content.TypeText, Text: caption}, after)
	return nil
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
