package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gemini-composer/internal/config"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/session"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubGenerator struct {
	reply gemini.Reply
	err   error
	last  gemini.Request
}

func (g *stubGenerator) Generate(_ context.Context, req gemini.Request) (gemini.Reply, error) {
	g.last = req
	return g.reply, g.err
}

type harness struct {
	dir string
	db  string
	cfg config.Config
	gen *stubGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Parse(map[string]string{
		"GEMINI_API_KEY": "test-key",
		"LOG_LEVEL":      "error",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	return &harness{
		dir: dir,
		db:  filepath.Join(dir, "composer.db"),
		cfg: cfg,
		gen: &stubGenerator{},
	}
}

func (h *harness) runCLI(t *testing.T, args ...string) (stdout string, stderr string, err error) {
	t.Helper()

	app := &App{
		Config:       h.cfg,
		newGenerator: func(config.Config, zerolog.Logger) session.Generator { return h.gen },
		interactive:  func(*cobra.Command) bool { return false },
	}
	cmd := newRootCmd(app)

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	e := cmd.Execute()
	return outBuf.String(), errBuf.String(), e
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := h.runCLI(t, args...)
	require.NoError(t, err, errOut)
	return out
}

func (h *harness) dump(t *testing.T) dumpDoc {
	t.Helper()
	var doc dumpDoc
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "dump")), &doc))
	return doc
}

func TestRootListsStartingItem(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t)

	assert.Contains(t, out, "ROLE")
	assert.Contains(t, out, "user")
	assert.Contains(t, out, "(empty)")
	assert.Contains(t, out, "aspect 1:1 · size 1K · API key set")
}

func TestAddTextAndPersist(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "add", "model")
	h.mustRun(t, "text", "1", "draw", "a", "cat")
	h.mustRun(t, "text", "2", "a cat, drawn")

	doc := h.dump(t)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "user", doc.Items[0].Item.Role)
	assert.Equal(t, "draw a cat", doc.Items[0].Item.Text)
	assert.Equal(t, "model", doc.Items[1].Item.Role)
	assert.Equal(t, "a cat, drawn", doc.Items[1].Item.Text)
	assert.True(t, doc.Items[0].State.Removable)
	assert.True(t, doc.Items[1].State.Visible.Download)
}

func TestAddAfterInsertsInPlace(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add")
	h.mustRun(t, "text", "2", "second")

	h.mustRun(t, "add", "model", "--after", "1")

	doc := h.dump(t)
	require.Len(t, doc.Items, 3)
	assert.Equal(t, "model", doc.Items[1].Item.Role)
	assert.Equal(t, "second", doc.Items[2].Item.Text)
}

func TestMoveAndRemove(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "text", "1", "first")
	h.mustRun(t, "add")
	h.mustRun(t, "text", "2", "second")

	h.mustRun(t, "move", "2", "up")
	doc := h.dump(t)
	assert.Equal(t, "second", doc.Items[0].Item.Text)

	out := h.mustRun(t, "move", "1", "up")
	assert.Contains(t, out, "already at the edge")

	h.mustRun(t, "rm", "1")
	doc = h.dump(t)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "first", doc.Items[0].Item.Text)
}

func TestRemoveLastItemFails(t *testing.T) {
	h := newHarness(t)

	_, errOut, err := h.runCLI(t, "rm", "1")

	require.Error(t, err)
	assert.Contains(t, errOut, "At least one content item is required.")
}

func TestUnknownItem(t *testing.T) {
	h := newHarness(t)

	_, errOut, err := h.runCLI(t, "text", "99", "hello")
	require.Error(t, err)
	assert.Contains(t, errOut, "That item no longer exists.")

	_, _, err = h.runCLI(t, "text", "first", "hello")
	require.Error(t, err)
}

func TestRoleAndType(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, "role", "1", "model")
	out := h.mustRun(t, "type", "1")
	assert.Contains(t, out, "is now image")

	doc := h.dump(t)
	assert.Equal(t, "model", doc.Items[0].Item.Role)
	assert.Equal(t, "image", doc.Items[0].Item.Type)
	assert.Equal(t, "image", string(doc.Items[0].State.ActivePanel))

	h.mustRun(t, "type", "1", "text")
	assert.Equal(t, "text", h.dump(t).Items[0].Item.Type)
}

func TestImageAttachAndDump(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "cat.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	h.mustRun(t, "type", "1", "image")
	out := h.mustRun(t, "image", "1", path)
	assert.Contains(t, out, "image/png")

	doc := h.dump(t)
	assert.Equal(t, "image/png", doc.Items[0].Item.MimeType)
	assert.Empty(t, doc.Items[0].Item.ImageData)
	assert.Positive(t, doc.Items[0].Item.ImageBytes)

	var full dumpDoc
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "dump", "--images")), &full))
	assert.NotEmpty(t, full.Items[0].Item.ImageData)
}

func TestImageRejectsNonImage(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just words"), 0o644))

	_, _, err := h.runCLI(t, "image", "1", path)

	require.Error(t, err)
}

func TestGenerateTextPrintsReply(t *testing.T) {
	h := newHarness(t)
	h.gen.reply = gemini.Reply{Mode: gemini.ModeText, Text: "Once upon a time"}
	h.mustRun(t, "text", "1", "tell me a story")

	out := h.mustRun(t, "generate", "1")

	assert.Equal(t, "Once upon a time\n", out)
	assert.Equal(t, "test-key", h.gen.last.APIKey)
	assert.Equal(t, gemini.ModeText, h.gen.last.Mode)

	doc := h.dump(t)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "model", doc.Items[1].Item.Role)
	assert.Equal(t, "Once upon a time", doc.Items[1].Item.Text)
}

func TestGenerateImageAndDownload(t *testing.T) {
	h := newHarness(t)
	h.gen.reply = gemini.Reply{Mode: gemini.ModeImage, ImageData: "iVBORw0KGgo=", MimeType: "image/png"}
	h.mustRun(t, "text", "1", "draw a cat")
	h.mustRun(t, "cycle", "aspect")

	out := h.mustRun(t, "generate", "1", "--mode", "image")
	assert.Contains(t, out, "inserted image item")
	assert.Equal(t, "2:3", h.gen.last.AspectRatio)

	target := filepath.Join(h.dir, "cat.png")
	h.mustRun(t, "download", "2", "--out", target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data)
}

func TestGenerateFailureReportsMessage(t *testing.T) {
	h := newHarness(t)
	h.gen.err = &gemini.APIError{StatusCode: 429, Message: "quota exceeded"}
	h.mustRun(t, "text", "1", "hello")

	_, errOut, err := h.runCLI(t, "generate", "1")

	require.Error(t, err)
	assert.Contains(t, errOut, "quota exceeded")
	assert.Len(t, h.dump(t).Items, 1)
}

func TestGenerateRejectsUnknownMode(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.runCLI(t, "generate", "1", "--mode", "video")

	require.Error(t, err)
}

func TestDownloadToStdout(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "role", "1", "model")
	h.mustRun(t, "text", "1", "a cat sat")

	out := h.mustRun(t, "download", "1", "--out", "-")

	assert.Equal(t, "a cat sat", out)
}

func TestDownloadEmptyItemFails(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "role", "1", "model")

	_, _, err := h.runCLI(t, "download", "1", "--out", "-")

	require.Error(t, err)
}

func TestKeyAndCycle(t *testing.T) {
	h := newHarness(t)
	h.cfg.GeminiAPIKey = ""

	assert.False(t, h.dump(t).HasAPIKey)
	h.mustRun(t, "key", "stored-key")
	assert.True(t, h.dump(t).HasAPIKey)
	h.mustRun(t, "key")
	assert.False(t, h.dump(t).HasAPIKey)

	out := h.mustRun(t, "cycle", "size")
	assert.Contains(t, out, "image size 2K")
	assert.Equal(t, "2K", h.dump(t).ImageSize)

	_, _, err := h.runCLI(t, "cycle", "colour")
	require.Error(t, err)
}

func TestClearStartsOver(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add")
	h.mustRun(t, "add")

	h.mustRun(t, "clear")

	doc := h.dump(t)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "user", doc.Items[0].Item.Role)
	assert.Empty(t, doc.Items[0].Item.Text)
}

func TestDumpYAML(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "text", "1", "hello")

	out := h.mustRun(t, "dump", "--format", "yaml")

	var doc dumpDoc
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "hello", doc.Items[0].Item.Text)
	assert.Equal(t, "1:1", doc.AspectRatio)

	_, _, err := h.runCLI(t, "dump", "--format", "xml")
	require.Error(t, err)
}
