package httpclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, defaultTimeout, c.Timeout)

	c = New(Options{Timeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestLoggingOmitsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := New(Options{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)})

	resp, err := c.Get(srv.URL + "/v1beta/models/m:generateContent?key=top-secret")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), "/v1beta/models/m:generateContent")
	assert.NotContains(t, buf.String(), "top-secret")
}

func TestRedactPath(t *testing.T) {
	assert.Equal(t, "/bot***/getUpdates", redactPath("/bot123:abc/getUpdates"))
	assert.Equal(t, "/file/bot***/photos/a.jpg", redactPath("/file/bot123:abc/photos/a.jpg"))
	assert.Equal(t, "/v1beta/models/m:generateContent", redactPath("/v1beta/models/m:generateContent"))
}
