package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/Quill/internal/auth"
	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/signing"
)

const (
	maxJSONBody         = 1 << 20
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

type messageRequest struct {
	FileID  string `json:"fileId"`
	Message string `json:"message"`
}

type messageResponse struct {
	Answer string `json:"answer"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", model.ErrValidation)
	}
	return nil
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.chat.Answer(r.Context(), req.FileID, userID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Answer: answer})
}

// uploadCompleteRequest mirrors the body posted by the upload service.
type uploadCompleteRequest struct {
	Metadata struct {
		UserID           string `json:"userId"`
		SubscriptionPlan string `json:"subscriptionPlan"`
	} `json:"metadata"`
	File struct {
		Key  string `json:"key"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"file"`
}

func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read body: %w", model.ErrValidation))
		return
	}
	if s.signer == nil || !s.signer.Validate(body, r.Header.Get(signing.TimestampHeader), r.Header.Get(signing.SignatureHeader)) {
		s.writeError(w, r, fmt.Errorf("bad hook signature: %w", model.ErrUnauthorized))
		return
	}
	var req uploadCompleteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, fmt.Errorf("malformed request body: %w", model.ErrValidation))
		return
	}
	s.accept(w, r, ingest.UploadEvent{
		UserID: req.Metadata.UserID,
		Key:    req.File.Key,
		Name:   req.File.Name,
		URL:    req.File.URL,
		Plan:   req.Metadata.SubscriptionPlan,
	})
}

// accept runs the hook and answers 202 for a new upload and 200 for a
// replayed one.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, ev ingest.UploadEvent) {
	file, err := s.hook.Accept(r.Context(), ev)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, file)
	case errors.Is(err, model.ErrDuplicateUpload) && file != nil:
		respondJSON(w, http.StatusOK, file)
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	file, err := s.files.GetOwned(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

type messagesResponse struct {
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("limit must be a positive integer: %w", model.ErrValidation))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	msgs, next, err := s.chat.History(r.Context(), r.PathValue("id"), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	respondJSON(w, http.StatusOK, messagesResponse{Messages: msgs, NextCursor: next})
}
