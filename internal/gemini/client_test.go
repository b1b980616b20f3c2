package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"gemini-composer/internal/content"
)

type capturedRequest struct {
	Path  string
	Key   string
	Model string
	Body  string
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest, *atomic.Int32) {
	t.Helper()
	var got capturedRequest
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		got = capturedRequest{
			Path: r.URL.Path,
			Key:  r.URL.Query().Get("key"),
			Body: string(raw),
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &calls
}

func textTurns() []Turn {
	return []Turn{{Role: "user", Parts: []Part{{Text: "draw a cat"}}}}
}

func TestGenerateTextMode(t *testing.T) {
	srv, got, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"a cat sat"}]}}]}`)
	c := New(Options{BaseURL: srv.URL})

	reply, err := c.Generate(context.Background(), Request{APIKey: "k-1", Turns: textTurns(), Mode: ModeText})
	require.NoError(t, err)
	assert.Equal(t, Reply{Mode: ModeText, Text: "a cat sat"}, reply)

	assert.Equal(t, "/v1beta/models/"+DefaultTextModel+":generateContent", got.Path)
	assert.Equal(t, "k-1", got.Key)
	assert.False(t, gjson.Get(got.Body, "generationConfig").Exists(), "text mode sends no generation config")
	assert.JSONEq(t, `[{"role":"user","parts":[{"text":"draw a cat"}]}]`, gjson.Get(got.Body, "contents").Raw)

	it := reply.Item(42)
	assert.Equal(t, content.Item{ID: 42, Role: content.RoleModel, Type: content.TypeText, Text: "a cat sat"}, it)
}

func TestGenerateImageMode(t *testing.T) {
	srv, got, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[
		{"text":"here you go"},
		{"inlineData":{"mimeType":"image/jpeg","data":"/9j/"}}
	]}}]}`)
	c := New(Options{BaseURL: srv.URL, ImageModel: "img-model"})

	reply, err := c.Generate(context.Background(), Request{
		APIKey:      "k",
		Turns:       textTurns(),
		Mode:        ModeImage,
		AspectRatio: "16:9",
		ImageSize:   "2K",
	})
	require.NoError(t, err)
	assert.Equal(t, Reply{Mode: ModeImage, ImageData: "/9j/", MimeType: "image/jpeg"}, reply)

	assert.Equal(t, "/v1beta/models/img-model:generateContent", got.Path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Body), &body))
	assert.Equal(t, map[string]any{
		"responseModalities": []any{"IMAGE"},
		"imageConfig":        map[string]any{"aspectRatio": "16:9", "imageSize": "2K"},
	}, body["generationConfig"])

	it := reply.Item(7)
	assert.Equal(t, content.TypeImage, it.Type)
	assert.Equal(t, content.RoleModel, it.Role)
	assert.Equal(t, "image/jpeg", it.MimeType)
}

func TestGenerateSnakeCaseInlineData(t *testing.T) {
	srv, _, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"inline_data":{"data":"AAAA"}}]}}]}`)
	c := New(Options{BaseURL: srv.URL})

	reply, err := c.Generate(context.Background(), Request{APIKey: "k", Turns: textTurns(), Mode: ModeImage})
	require.NoError(t, err)
	assert.Equal(t, "AAAA", reply.ImageData)
	assert.Equal(t, content.DefaultImageMime, reply.MimeType)
}

func TestGenerateValidationBeforeNetwork(t *testing.T) {
	srv, _, calls := newTestServer(t, http.StatusOK, `{}`)
	c := New(Options{BaseURL: srv.URL})

	_, err := c.Generate(context.Background(), Request{APIKey: "  ", Turns: textTurns(), Mode: ModeText})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.True(t, IsValidation(err))

	_, err = c.Generate(context.Background(), Request{APIKey: "k", Mode: ModeText})
	assert.ErrorIs(t, err, ErrEmptyConversation)

	assert.Zero(t, calls.Load())
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		mode    Mode
		wantErr error
		wantMsg string
	}{
		{"server message", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid"}}`, ModeText, nil, "API key not valid"},
		{"generic failure", http.StatusInternalServerError, `oops`, ModeText, nil, "request failed"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ModeText, ErrNoResult, ""},
		{"missing candidates", http.StatusOK, `{}`, ModeImage, ErrNoResult, ""},
		{"no parts", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, ModeText, ErrMalformedResponse, ""},
		{"no content", http.StatusOK, `{"candidates":[{"finishReason":"SAFETY"}]}`, ModeImage, ErrMalformedResponse, ""},
		{"not json", http.StatusOK, `<html>`, ModeText, ErrMalformedResponse, ""},
		{"no text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"AA"}}]}}]}`, ModeText, ErrNoText, ""},
		{"no image", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`, ModeImage, ErrNoImage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, tt.status, tt.body)
			c := New(Options{BaseURL: srv.URL})

			_, err := c.Generate(context.Background(), Request{APIKey: "k", Turns: textTurns(), Mode: tt.mode})
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsProtocol(err))
				return
			}

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Error())
		})
	}
}

func TestGenerateTransportErrorHidesKey(t *testing.T) {
	srv, _, _ := newTestServer(t, http.StatusOK, `{}`)
	srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), Request{APIKey: "super-secret", Turns: textTurns(), Mode: ModeText})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret")
}
