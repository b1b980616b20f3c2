package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"gemini-composer/internal/content"
)

type Credential struct {
	kv KV
}

func NewCredential(kv KV) *Credential {
	return &Credential{kv: kv}
}

func (c *Credential) Load(ctx context.Context) (string, error) {
	v, _, err := c.kv.Get(ctx, KeyCredential)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (c *Credential) Save(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return c.kv.Delete(ctx, KeyCredential)
	}
	return c.kv.Set(ctx, KeyCredential, apiKey)
}

type Selections struct {
	kv KV
}

func NewSelections(kv KV) *Selections {
	return &Selections{kv: kv}
}

// Load never fails on bad data; unknown values come back as defaults.
func (s *Selections) Load(ctx context.Context) (content.Selection, error) {
	raw, ok, err := s.kv.Get(ctx, KeySelection)
	if err != nil || !ok {
		return content.DefaultSelection(), err
	}
	sel := content.Selection{
		AspectRatio: gjson.Get(raw, "aspectRatio").String(),
		ImageSize:   gjson.Get(raw, "imageSize").String(),
	}
	return sel.Normalize(), nil
}

func (s *Selections) Save(ctx context.Context, sel content.Selection) error {
	b, err := json.Marshal(map[string]string{
		"aspectRatio": sel.AspectRatio,
		"imageSize":   sel.ImageSize,
	})
	if err != nil {
		return errors.Wrap(err, "marshal selection")
	}
	return s.kv.Set(ctx, KeySelection, string(b))
}
