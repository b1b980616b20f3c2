package httpclient

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 180 * time.Second

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// New returns the client shared by the Gemini and Telegram transports.
// Outbound calls are logged at debug level without their query string,
// which carries the Gemini API key. Telegram bot tokens are masked in paths.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &loggingTransport{
			next:   newTransport(opts.PreferIPv4),
			logger: opts.Logger,
		},
	}
}

func newTransport(preferIPv4 bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	dial := dialer.DialContext
	if preferIPv4 {
		dial = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 150 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

type loggingTransport struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	ev := t.logger.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", redactPath(req.URL.Path)).
		Dur("took", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("http call failed")
		return nil, err
	}
	ev.Int("status", resp.StatusCode).Msg("http call")
	return resp, nil
}

// redactPath masks Telegram "bot<id>:<secret>" path segments.
func redactPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "bot") && strings.Contains(seg, ":") {
			segments[i] = "bot***"
		}
	}
	return strings.Join(segments, "/")
}
