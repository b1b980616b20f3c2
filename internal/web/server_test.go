package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/session"
	"gemini-composer/internal/store"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type stubGenerator struct {
	reply gemini.Reply
	err   error
	calls atomic.Int32
}

func (g *stubGenerator) Generate(context.Context, gemini.Request) (gemini.Reply, error) {
	g.calls.Add(1)
	return g.reply, g.err
}

type listBody struct {
	Items []struct {
		Item  content.Item `json:"item"`
		State struct {
			Removable   bool `json:"removable"`
			CanGenerate bool `json:"canGenerate"`
			CanDownload bool `json:"canDownload"`
		} `json:"state"`
	} `json:"items"`
	Selection content.Selection `json:"selection"`
	Notice    string            `json:"notice"`
	HasAPIKey bool              `json:"hasApiKey"`
}

func newTestServer(t *testing.T, gen session.Generator) (*httptest.Server, *session.Session) {
	t.Helper()
	sess, err := session.Open(context.Background(), session.Options{
		KV:        store.NewMemory(),
		Generator: gen,
		Logger:    zerolog.Nop(),
		APIKey:    "test-key",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(New(sess, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, sess
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeList(t *testing.T, raw []byte) listBody {
	t.Helper()
	var out listBody
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func itemURL(srv *httptest.Server, id int64, suffix string) string {
	return srv.URL + "/api/items/" + strconv.FormatInt(id, 10) + suffix
}

func TestListStartsWithOneUserItem(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decodeList(t, raw)
	require.Len(t, body.Items, 1)
	assert.Equal(t, content.RoleUser, body.Items[0].Item.Role)
	assert.False(t, body.Items[0].State.Removable)
	assert.Equal(t, content.DefaultSelection(), body.Selection)
	assert.True(t, body.HasAPIKey)
}

func TestAddPatchMoveRemove(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	first := decodeList(t, raw).Items[0].Item.ID

	resp, raw := do(t, http.MethodPost, srv.URL+"/api/items", map[string]any{"role": "model"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeList(t, raw)
	require.Len(t, body.Items, 2)
	second := body.Items[1].Item.ID
	assert.Equal(t, content.RoleModel, body.Items[1].Item.Role)

	resp, raw = do(t, http.MethodPatch, itemURL(srv, second, ""), map[string]any{"text": "a cat sat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeList(t, raw)
	assert.Equal(t, "a cat sat", body.Items[1].Item.Text)
	assert.True(t, body.Items[1].State.CanDownload)

	resp, raw = do(t, http.MethodPost, itemURL(srv, second, "/move"), map[string]any{"direction": "up"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeList(t, raw)
	assert.Equal(t, second, body.Items[0].Item.ID)
	assert.Equal(t, first, body.Items[1].Item.ID)

	resp, raw = do(t, http.MethodDelete, itemURL(srv, first, ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeList(t, raw).Items, 1)
}

func TestRemoveLastItemIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	id := decodeList(t, raw).Items[0].Item.ID

	resp, raw := do(t, http.MethodDelete, itemURL(srv, id, ""), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "At least one content item is required.")
}

func TestUnknownItemIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, _ := do(t, http.MethodPatch, itemURL(srv, 999, ""), map[string]any{"text": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadImage(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	id := decodeList(t, raw).Items[0].Item.ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="cat.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(itemURL(srv, id, "/image"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body listBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "image/png", body.Items[0].Item.MimeType)
	assert.NotEmpty(t, body.Items[0].Item.ImageData)
}

func TestGenerateAndDownload(t *testing.T) {
	gen := &stubGenerator{reply: gemini.Reply{Mode: gemini.ModeText, Text: "a cat sat"}}
	srv, _ := newTestServer(t, gen)
	_, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	id := decodeList(t, raw).Items[0].Item.ID
	do(t, http.MethodPatch, itemURL(srv, id, ""), map[string]any{"text": "tell me a story"})

	resp, raw := do(t, http.MethodPost, itemURL(srv, id, "/generate"), map[string]any{"mode": "text"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeList(t, raw)
	require.Len(t, body.Items, 2)
	reply := body.Items[1].Item
	assert.Equal(t, content.RoleModel, reply.Role)
	assert.Equal(t, "a cat sat", reply.Text)

	resp, raw = do(t, http.MethodGet, itemURL(srv, reply.ID, "/download"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a cat sat", string(raw))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;"))
}

func TestGenerateErrorsMapToStatus(t *testing.T) {
	gen := &stubGenerator{err: &gemini.APIError{StatusCode: 429, Message: "quota exceeded"}}
	srv, sess := newTestServer(t, gen)
	_, raw := do(t, http.MethodGet, srv.URL+"/api/items", nil)
	id := decodeList(t, raw).Items[0].Item.ID

	resp, _ := do(t, http.MethodPost, itemURL(srv, id, "/generate"), map[string]any{"mode": "image"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty item cannot generate")
	assert.Zero(t, gen.calls.Load())

	do(t, http.MethodPatch, itemURL(srv, id, ""), map[string]any{"text": "draw a cat"})
	resp, raw = do(t, http.MethodPost, itemURL(srv, id, "/generate"), map[string]any{"mode": "image"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(raw), "Error: quota exceeded")
	assert.Equal(t, "Error: quota exceeded", sess.Notice())

	resp, _ = do(t, http.MethodPost, itemURL(srv, id, "/generate"), map[string]any{"mode": "video"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectionAndKey(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, raw := do(t, http.MethodPost, srv.URL+"/api/selection/aspect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2:3", decodeList(t, raw).Selection.AspectRatio)

	_, raw = do(t, http.MethodPost, srv.URL+"/api/selection/size", nil)
	assert.Equal(t, "2K", decodeList(t, raw).Selection.ImageSize)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/selection/color", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, raw = do(t, http.MethodPut, srv.URL+"/api/key", map[string]any{"apiKey": ""})
	assert.False(t, decodeList(t, raw).HasAPIKey)
}

func TestClear(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	do(t, http.MethodPost, srv.URL+"/api/items", map[string]any{"role": "user"})

	resp, raw := do(t, http.MethodPost, srv.URL+"/api/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeList(t, raw).Items, 1)
}
