package session

import (
	"context"
	"errors"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/media"
)

// Message turns any error into the single line shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *gemini.APIError
	switch {
	case errors.As(err, &apiErr):
		return "Error: " + apiErr.Error()
	case errors.Is(err, gemini.ErrMissingAPIKey):
		return "Please enter your API key."
	case errors.Is(err, gemini.ErrEmptyConversation):
		return "Please enter at least one piece of content."
	case errors.Is(err, gemini.ErrNoResult):
		return "Error: no result received."
	case errors.Is(err, gemini.ErrNoText):
		return "Error: no text received."
	case errors.Is(err, gemini.ErrNoImage):
		return "Error: no image received."
	case errors.Is(err, gemini.ErrMalformedResponse):
		return "Error: malformed response."
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: request timed out."
	case errors.Is(err, content.ErrLastItem):
		return "At least one content item is required."
	case errors.Is(err, content.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, ErrBusy):
		return "A generation from this item is already running."
	case errors.Is(err, ErrCannotGenerate):
		return "Add text or an image to this item first."
	case errors.Is(err, media.ErrNoImageToExport):
		return "No image to download."
	case errors.Is(err, media.ErrNothingToExport):
		return "No text to download."
	case errors.Is(err, media.ErrNotImage):
		return "Please choose an image file."
	case errors.Is(err, media.ErrEmpty):
		return "The image file is empty."
	}
	return "Error: " + err.Error()
}
