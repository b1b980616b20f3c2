package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"gemini-composer/internal/content"
)

const (
	DefaultImageModel = "gemini-3-pro-image-preview"
	DefaultTextModel  = "gemini-3-flash-preview"
)

type Options struct {
	BaseURL    string
	APIVersion string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	baseURL    string
	apiVersion string
	imageModel string
	textModel  string
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = DefaultTextModel
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		imageModel: imageModel,
		textModel:  textModel,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

func (c *Client) Model(mode Mode) string {
	if mode == ModeImage {
		return c.imageModel
	}
	return c.textModel
}

// Generate sends the conversation once. Every failure is final; nothing is
// retried.
func (c *Client) Generate(ctx context.Context, req Request) (Reply, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return Reply{}, ErrMissingAPIKey
	}
	if len(req.Turns) == 0 {
		return Reply{}, ErrEmptyConversation
	}

	mode := req.Mode
	if mode != ModeImage {
		mode = ModeText
	}

	payload := generateContentRequest{Contents: req.Turns}
	if mode == ModeImage {
		sel := content.Selection{AspectRatio: req.AspectRatio, ImageSize: req.ImageSize}.Normalize()
		payload.GenerationConfig = &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig: &imageConfig{
				AspectRatio: sel.AspectRatio,
				ImageSize:   sel.ImageSize,
			},
		}
	}

	model := c.Model(mode)
	log := c.logger.With().
		Str("request_id", uuid.NewString()).
		Str("model", model).
		Str("mode", string(mode)).
		Int("turns", len(req.Turns)).
		Logger()

	start := time.Now()
	status, body, err := c.post(ctx, model, apiKey, payload)
	if err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("generate request failed")
		return Reply{}, err
	}
	log.Debug().Int("status", status).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("generate response")

	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status}
		if gjson.ValidBytes(body) {
			apiErr.Message = strings.TrimSpace(gjson.GetBytes(body, "error.message").String())
		}
		log.Warn().Int("status", status).Str("message", apiErr.Message).Msg("gemini rejected request")
		return Reply{}, apiErr
	}

	reply, err := parseReply(body, mode)
	if err != nil {
		log.Warn().Err(err).Msg("unusable gemini response")
		return Reply{}, err
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, model, apiKey string, payload generateContentRequest) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal request")
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		c.baseURL, c.apiVersion, url.PathEscape(model), url.QueryEscape(apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("content-type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, errors.Wrap(redactKey(err, apiKey), "request")
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read response")
	}
	return httpResp.StatusCode, rawBody, nil
}

// parseReply accepts both inline_data/mime_type and inlineData/mimeType; the
// API has answered with either spelling.
func parseReply(body []byte, mode Mode) (Reply, error) {
	if !gjson.ValidBytes(body) {
		return Reply{}, ErrMalformedResponse
	}
	root := gjson.ParseBytes(body)

	candidates := root.Get("candidates")
	if !candidates.IsArray() || len(candidates.Array()) == 0 {
		return Reply{}, ErrNoResult
	}

	parts := candidates.Array()[0].Get("content.parts")
	if !parts.IsArray() || len(parts.Array()) == 0 {
		return Reply{}, ErrMalformedResponse
	}

	if mode == ModeText {
		for _, p := range parts.Array() {
			if text := p.Get("text"); text.Type == gjson.String && text.Str != "" {
				return Reply{Mode: ModeText, Text: text.Str}, nil
			}
		}
		return Reply{}, ErrNoText
	}

	for _, p := range parts.Array() {
		inline := p.Get("inline_data")
		if !inline.IsObject() {
			inline = p.Get("inlineData")
		}
		if !inline.IsObject() {
			continue
		}

		mimeType := inline.Get("mime_type").String()
		if mimeType == "" {
			mimeType = inline.Get("mimeType").String()
		}
		if mimeType == "" {
			mimeType = content.DefaultImageMime
		}
		return Reply{
			Mode:      ModeImage,
			ImageData: inline.Get("data").String(),
			MimeType:  mimeType,
		}, nil
	}
	return Reply{}, ErrNoImage
}

// redactKey keeps the query credential out of *url.Error messages.
func redactKey(err error, apiKey string) error {
	var urlErr *url.Error
	if apiKey == "" || !errors.As(err, &urlErr) {
		return err
	}
	cp := *urlErr
	cp.URL = strings.ReplaceAll(cp.URL, url.QueryEscape(apiKey), "REDACTED")
	return &cp
}

type generateContentRequest struct {
	Contents         []Turn            `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}
