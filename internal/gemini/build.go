package gemini

import (
	"strings"

	"gemini-composer/internal/content"
)

// BuildTurns converts the ordered item list into request contents. Each item
// yields at most one part and items with nothing to send are dropped.
func BuildTurns(items []content.Item) []Turn {
	turns := make([]Turn, 0, len(items))
	for _, it := range items {
		var parts []Part

		switch it.Type {
		case content.TypeText:
			if text := strings.TrimSpace(it.Text); text != "" {
				parts = append(parts, Part{Text: text})
			}
		case content.TypeImage:
			if it.HasImage() {
				mimeType := it.MimeType
				if mimeType == "" {
					mimeType = content.DefaultImageMime
				}
				parts = append(parts, Part{InlineData: &InlineData{
					MimeType: mimeType,
					Data:     it.ImageData,
				}})
			}
		}

		if len(parts) == 0 {
			continue
		}
		turns = append(turns, Turn{
			Role:  string(it.Role),
			Parts: parts,
		})
	}
	return turns
}
