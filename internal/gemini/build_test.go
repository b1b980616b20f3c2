package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gemini-composer/internal/content"
)

func TestBuildTurnsEmpty(t *testing.T) {
	assert.Empty(t, BuildTurns(nil))
	assert.Empty(t, BuildTurns([]content.Item{
		{ID: 1, Role: content.RoleUser, Type: content.TypeText, Text: "  \n\t "},
		{ID: 2, Role: content.RoleModel, Type: content.TypeText},
		{ID: 3, Role: content.RoleUser, Type: content.TypeImage, Text: "ignored while image"},
	}))
}

func TestBuildTurnsSingleText(t *testing.T) {
	got := BuildTurns([]content.Item{{ID: 1, Role: content.RoleUser, Type: content.TypeText, Text: "draw a cat"}})
	assert.Equal(t, []Turn{{Role: "user", Parts: []Part{{Text: "draw a cat"}}}}, got)
}

func TestBuildTurnsMixedKeepsOrder(t *testing.T) {
	got := BuildTurns([]content.Item{
		{ID: 1, Role: content.RoleUser, Type: content.TypeImage, ImageData: "AAAA", MimeType: "image/jpeg"},
		{ID: 2, Role: content.RoleUser, Type: content.TypeText, Text: "   "},
		{ID: 3, Role: content.RoleModel, Type: content.TypeText, Text: "  trimmed  ", ImageData: "BBBB", MimeType: "image/png"},
		{ID: 4, Role: content.RoleUser, Type: content.TypeImage, ImageData: "CCCC"},
	})

	assert.Equal(t, []Turn{
		{Role: "user", Parts: []Part{{InlineData: &InlineData{MimeType: "image/jpeg", Data: "AAAA"}}}},
		{Role: "model", Parts: []Part{{Text: "trimmed"}}},
		{Role: "user", Parts: []Part{{InlineData: &InlineData{MimeType: "image/png", Data: "CCCC"}}}},
	}, got)
}
