// Package web exposes one composer session as a local JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/media"
	"gemini-composer/internal/session"
)

const maxUploadBytes = 25 << 20

type Server struct {
	sess   *session.Session
	logger zerolog.Logger
	mux    *http.ServeMux
}

type apiError struct {
	Error string `json:"error"`
}

type addRequest struct {
	Role  string `json:"role"`
	After *int64 `json:"after,omitempty"`
}

type moveRequest struct {
	Direction string `json:"direction"`
}

type patchRequest struct {
	Role *string `json:"role,omitempty"`
	Type *string `json:"type,omitempty"`
	Text *string `json:"text,omitempty"`
}

type generateRequest struct {
	Mode string `json:"mode"`
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
}

func New(sess *session.Session, logger zerolog.Logger) *Server {
	s := &Server{sess: sess, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/items", s.handleList)
	s.mux.HandleFunc("POST /api/items", s.handleAdd)
	s.mux.HandleFunc("DELETE /api/items/{id}", s.withID(s.handleRemove))
	s.mux.HandleFunc("PATCH /api/items/{id}", s.withID(s.handlePatch))
	s.mux.HandleFunc("POST /api/items/{id}/move", s.withID(s.handleMove))
	s.mux.HandleFunc("POST /api/items/{id}/image", s.withID(s.handleImage))
	s.mux.HandleFunc("POST /api/items/{id}/generate", s.withID(s.handleGenerate))
	s.mux.HandleFunc("GET /api/items/{id}/download", s.withID(s.handleDownload))
	s.mux.HandleFunc("POST /api/selection/{which}", s.handleSelection)
	s.mux.HandleFunc("PUT /api/key", s.handleKey)
	s.mux.HandleFunc("POST /api/clear", s.handleClear)

	return s
}

func (s *Server) Handler() http.Handler {
	return withLogging(s.mux, s.logger)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}

	role := content.ParseRole(req.Role)
	if req.After != nil {
		s.sess.AddAfter(r.Context(), role, *req.After)
	} else {
		s.sess.Add(r.Context(), role)
	}
	writeJSON(w, http.StatusCreated, s.sess.Snapshot())
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request, id int64) {
	s.respond(w, s.sess.Remove(r.Context(), id))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, id int64) {
	var req patchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.Role != nil {
		if err := s.sess.SetRole(ctx, id, content.ParseRole(*req.Role)); err != nil {
			s.respond(w, err)
			return
		}
	}
	if req.Type != nil {
		if err := s.sess.SetType(ctx, id, content.ParseType(*req.Type)); err != nil {
			s.respond(w, err)
			return
		}
	}
	if req.Text != nil {
		if err := s.sess.SetText(ctx, id, *req.Text); err != nil {
			s.respond(w, err)
			return
		}
	}
	s.respond(w, nil)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, id int64) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dir, ok := content.ParseDirection(strings.ToLower(strings.TrimSpace(req.Direction)))
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "direction must be up or down"})
		return
	}
	_, err := s.sess.Move(r.Context(), id, dir)
	s.respond(w, err)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, id int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	s.respond(w, s.sess.SetImage(r.Context(), id, data, header.Header.Get("Content-Type")))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, id int64) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := gemini.ParseMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "mode must be image or text"})
		return
	}

	// A disconnecting client does not abort the call; the session's request
	// timeout still applies.
	_, err := s.sess.Generate(context.WithoutCancel(r.Context()), id, mode)
	s.respond(w, err)
}

func (s *Server) handleDownload(w http.ResponseWriter, _ *http.Request, id int64) {
	f, err := s.sess.Export(id)
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: session.Message(err)})
		return
	}

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("which") {
	case "aspect":
		s.sess.CycleAspect(r.Context())
	case "size":
		s.sess.CycleSize(r.Context())
	default:
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown selection"})
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.sess.SetAPIKey(r.Context(), req.APIKey)
	s.respond(w, nil)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.sess.Clear(r.Context())
	s.respond(w, nil)
}

// respond writes the current snapshot, or the user-facing message for err.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: session.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) withID(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid item id"})
			return
		}
		next(w, r, id)
	}
}

func statusFor(err error) int {
	var apiErr *gemini.APIError
	switch {
	case errors.Is(err, content.ErrNotFound), errors.Is(err, media.ErrNothingToExport):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr), gemini.IsProtocol(err):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoGenerator):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("dur_ms", time.Since(start).Milliseconds()).
			Msg("http")
	})
}
