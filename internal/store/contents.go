package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"gemini-composer/internal/content"
)

const (
	KeyCredential = "gemini_api_key"
	KeyContents   = "gemini_contents"
	KeySelection  = "gemini_selection"
)

type storedItem struct {
	ID        int64   `json:"id"`
	Role      string  `json:"role"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	ImageData *string `json:"imageData"`
	MimeType  *string `json:"mimeType"`
}

// Contents persists the ordered item list as one JSON snapshot. Save errors are
// logged and swallowed: losing a snapshot is tolerated, crashing is not.
type Contents struct {
	kv     KV
	logger zerolog.Logger
}

func NewContents(kv KV, logger zerolog.Logger) *Contents {
	return &Contents{kv: kv, logger: logger}
}

func (c *Contents) Save(ctx context.Context, items []content.Item) {
	raw, err := Encode(items)
	if err != nil {
		c.logger.Warn().Err(err).Msg("encode contents failed")
		return
	}
	if err := c.kv.Set(ctx, KeyContents, raw); err != nil {
		c.logger.Warn().Err(err).Int("items", len(items)).Msg("save contents failed")
	}
}

// Load returns false when nothing usable is stored.
func (c *Contents) Load(ctx context.Context) ([]content.Item, bool) {
	raw, ok, err := c.kv.Get(ctx, KeyContents)
	if err != nil {
		c.logger.Warn().Err(err).Msg("load contents failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	items, ok := Decode(raw)
	if !ok {
		c.logger.Debug().Int("bytes", len(raw)).Msg("stored contents unusable, starting fresh")
	}
	return items, ok
}

func (c *Contents) Clear(ctx context.Context) {
	if err := c.kv.Delete(ctx, KeyContents); err != nil {
		c.logger.Warn().Err(err).Msg("clear contents failed")
	}
}

func Encode(items []content.Item) (string, error) {
	out := make([]storedItem, 0, len(items))
	for _, it := range items {
		si := storedItem{
			ID:   it.ID,
			Role: string(it.Role),
			Type: string(it.Type),
			Text: it.Text,
		}
		if it.HasImage() {
			data, mime := it.ImageData, it.MimeType
			si.ImageData = &data
			si.MimeType = &mime
		}
		out = append(out, si)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "marshal contents")
	}
	return string(b), nil
}

// Decode coerces a stored snapshot field by field. Anything that is not a
// non-empty JSON array is reported as absent; inside the array every field
// falls back to a safe default instead of failing. Missing ids stay zero;
// content.NewList allocates them and resolves duplicates.
func Decode(raw string) ([]content.Item, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil, false
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, false
	}

	elems := parsed.Array()
	if len(elems) == 0 {
		return nil, false
	}

	items := make([]content.Item, 0, len(elems))
	for _, el := range elems {
		it := content.Item{
			Role: content.RoleUser,
			Type: content.TypeText,
		}

		if id := el.Get("id"); id.Type == gjson.Number && id.Int() > 0 {
			it.ID = id.Int()
		}
		if role := el.Get("role"); role.Type == gjson.String {
			it.Role = content.ParseRole(role.Str)
		}
		if typ := el.Get("type"); typ.Type == gjson.String {
			it.Type = content.ParseType(typ.Str)
		}
		if text := el.Get("text"); text.Type == gjson.String {
			it.Text = text.Str
		}
		if data := el.Get("imageData"); data.Type == gjson.String && data.Str != "" {
			it.ImageData = data.Str
			if mime := el.Get("mimeType"); mime.Type == gjson.String && strings.TrimSpace(mime.Str) != "" {
				it.MimeType = strings.TrimSpace(mime.Str)
			} else {
				it.MimeType = content.DefaultImageMime
			}
		}

		items = append(items, it)
	}
	return items, true
}
