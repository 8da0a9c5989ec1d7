// Package api exposes the HTTP surface: chat, the upload completion hook,
// direct uploads and file/message reads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dharsanguruparan/Quill/internal/auth"
	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/signing"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

// ChatService answers questions and replays history.
type ChatService interface {
	Answer(ctx context.Context, fileID, userID, question string) (string, error)
	History(ctx context.Context, fileID, userID string, limit int, cursor string) ([]model.Message, string, error)
}

// UploadAcceptor records a completed upload and schedules ingestion.
type UploadAcceptor interface {
	Accept(ctx context.Context, ev ingest.UploadEvent) (*model.File, error)
}

// BlobStore receives direct uploads.
type BlobStore interface {
	UploadRaw(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignURL(ctx context.Context, key string) (string, error)
}

// Deps groups what the Server needs. Blobs may be nil, in which case
// POST /files is not routed.
type Deps struct {
	Chat          ChatService
	Hook          UploadAcceptor
	Files         storage.FileStore
	Blobs         BlobStore
	Signer        *signing.Signer
	JWTSecret     []byte
	Log           logging.Logger
	MaxUploadSize int64
}

// Server exposes HTTP endpoints for chat and uploads.
type Server struct {
	chat          ChatService
	hook          UploadAcceptor
	files         storage.FileStore
	blobs         BlobStore
	signer        *signing.Signer
	jwtSecret     []byte
	log           logging.Logger
	maxUploadSize int64
}

// New constructs a Server.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		chat:          d.Chat,
		hook:          d.Hook,
		files:         d.Files,
		blobs:         d.Blobs,
		signer:        d.Signer,
		jwtSecret:     d.JWTSecret,
		log:           log.With("component", "api"),
		maxUploadSize: d.MaxUploadSize,
	}
}

// Handler returns the routed handler wrapped in logging and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /message", s.requireUser(s.handleMessage))
	mux.HandleFunc("POST /uploads/complete", s.handleUploadComplete)
	if s.blobs != nil {
		mux.Handle("POST /files", s.requireUser(s.handleUpload))
	}
	mux.Handle("GET /files/{id}", s.requireUser(s.handleFile))
	mux.Handle("GET /files/{id}/messages", s.requireUser(s.handleMessages))
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info(ctx, "api listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireUser rejects requests without a valid bearer token and stores the
// user id on the request context.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		userID, err := auth.UserIDFromToken(token, s.jwtSecret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
