package gemini

import (
	"errors"
	"fmt"

	"gemini-composer/internal/content"
)

type Mode string

const (
	ModeImage Mode = "image"
	ModeText  Mode = "text"
)

func ParseMode(value string) (Mode, bool) {
	switch Mode(value) {
	case ModeImage, ModeText:
		return Mode(value), true
	}
	return "", false
}

// Turn is one role-tagged entry of the request "contents" array.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type Request struct {
	APIKey      string
	Turns       []Turn
	Mode        Mode
	AspectRatio string
	ImageSize   string
}

// Reply is the decoded output of one generation. The caller owns id
// allocation and turns it into an item with Item.
type Reply struct {
	Mode      Mode
	Text      string
	ImageData string
	MimeType  string
}

func (r Reply) Item(id int64) content.Item {
	it := content.Item{
		ID:   id,
		Role: content.RoleModel,
		Type: content.TypeText,
		Text: r.Text,
	}
	if r.Mode == ModeImage {
		it.Type = content.TypeImage
		it.Text = ""
		it.ImageData = r.ImageData
		it.MimeType = r.MimeType
	}
	return it
}

var (
	ErrMissingAPIKey     = errors.New("API key is required")
	ErrEmptyConversation = errors.New("enter at least one piece of content")
	ErrNoResult          = errors.New("no result received")
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoText            = errors.New("no text received")
	ErrNoImage           = errors.New("no image received")
)

const genericFailure = "request failed"

// APIError is a non-success HTTP outcome. Message is the server's
// error.message when it sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return genericFailure
	}
	return e.Message
}

func (e *APIError) Detail() string {
	return fmt.Sprintf("gemini API %d: %s", e.StatusCode, e.Error())
}

// IsValidation reports errors raised before any network call.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrEmptyConversation)
}

// IsProtocol reports a success response that lacked the expected structure.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrNoResult) || errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrNoText) || errors.Is(err, ErrNoImage)
}
