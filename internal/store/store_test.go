package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-composer/internal/content"
)

func TestContentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewContents(NewMemory(), zerolog.Nop())

	in := []content.Item{
		{ID: 3, Role: content.RoleUser, Type: content.TypeText, Text: "draw a cat"},
		{ID: 9, Role: content.RoleModel, Type: content.TypeImage, Text: "kept", ImageData: "iVBORw0KGgo=", MimeType: "image/png"},
		{ID: 4, Role: content.RoleUser, Type: content.TypeImage, ImageData: "/9j/4AAQ", MimeType: "image/jpeg"},
	}
	c.Save(ctx, in)

	out, ok := c.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestEncodeWritesNullImageFields(t *testing.T) {
	raw, err := Encode([]content.Item{{ID: 1, Role: content.RoleUser, Type: content.TypeText, Text: "hi"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"role":"user","type":"text","text":"hi","imageData":null,"mimeType":null}]`, raw)
}

func TestDecodeAbsentInputs(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"[]",
		"{}",
		`{"id":1}`,
		"null",
		"42",
		`"text"`,
		"[{",
		"not json at all",
	} {
		t.Run(raw, func(t *testing.T) {
			items, ok := Decode(raw)
			assert.False(t, ok)
			assert.Nil(t, items)
		})
	}
}

func TestDecodeCoercesFields(t *testing.T) {
	raw := `[
		{"id": "7", "role": "assistant", "type": "video", "text": 12, "imageData": 5, "mimeType": "image/png"},
		{"id": 8, "role": "model", "type": "image", "text": "ok", "imageData": "AAAA"},
		{"id": 10, "role": "user", "type": "text", "mimeType": "image/gif"},
		17,
		null,
		{"id": 11.9, "role": ["model"], "type": "IMAGE", "imageData": "BBBB", "mimeType": "image/webp"}
	]`

	items, ok := Decode(raw)
	require.True(t, ok)
	require.Len(t, items, 6)

	assert.Equal(t, content.Item{Role: content.RoleUser, Type: content.TypeText}, items[0])
	assert.Equal(t, content.Item{ID: 8, Role: content.RoleModel, Type: content.TypeImage, Text: "ok", ImageData: "AAAA", MimeType: content.DefaultImageMime}, items[1])
	assert.Equal(t, content.Item{ID: 10, Role: content.RoleUser, Type: content.TypeText}, items[2])
	assert.Equal(t, content.Item{Role: content.RoleUser, Type: content.TypeText}, items[3])
	assert.Equal(t, content.Item{Role: content.RoleUser, Type: content.TypeText}, items[4])
	assert.Equal(t, content.Item{ID: 11, Role: content.RoleUser, Type: content.TypeImage, ImageData: "BBBB", MimeType: "image/webp"}, items[5])

	l := content.NewList(content.NewIDSource(0), items)
	seen := map[int64]bool{}
	for _, it := range l.Items() {
		assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
		assert.Positive(t, it.ID)
		seen[it.ID] = true
	}
}

func TestContentsClear(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewContents(mem, zerolog.Nop())

	c.Save(ctx, []content.Item{{ID: 1, Role: content.RoleUser, Type: content.TypeText}})
	c.Clear(ctx)

	_, ok := c.Load(ctx)
	assert.False(t, ok)
	assert.Empty(t, mem.Keys())
}

func TestPrefixedIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := NewPrefixed(mem, "chat:1")
	b := NewPrefixed(mem, "chat:2:")

	require.NoError(t, a.Set(ctx, KeyCredential, "key-a"))
	require.NoError(t, b.Set(ctx, KeyCredential, "key-b"))

	v, ok, err := a.Get(ctx, KeyCredential)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "key-a", v)
	assert.Equal(t, []string{"chat:1:gemini_api_key", "chat:2:gemini_api_key"}, mem.Keys())
}

func TestSelectionsFallBackToDefaults(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	s := NewSelections(mem)

	sel, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, content.DefaultSelection(), sel)

	require.NoError(t, s.Save(ctx, content.Selection{AspectRatio: "16:9", ImageSize: "2K"}))
	sel, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, content.Selection{AspectRatio: "16:9", ImageSize: "2K"}, sel)

	require.NoError(t, mem.Set(ctx, KeySelection, `{"aspectRatio":"5:4","imageSize":3}`))
	sel, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, content.DefaultSelection(), sel)
}

func TestCredentialTrimsAndDeletes(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCredential(mem)

	require.NoError(t, c.Save(ctx, "  secret  "))
	key, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	require.NoError(t, c.Save(ctx, ""))
	key, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "composer.sqlite")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	_, ok, err := db.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(ctx, "k", "one"))
	require.NoError(t, db.Set(ctx, "k", "two"))
	v, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)
	require.NoError(t, db.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, reopened.Delete(ctx, "k"))
	_, ok, err = reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
