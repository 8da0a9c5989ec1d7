package api

import (
	"errors"
	"net/http"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// statusFor maps the error taxonomy onto HTTP status codes. Timeouts are
// checked first because they also carry the service class.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrGeneration),
		errors.Is(err, model.ErrEmptyAnswer),
		errors.Is(err, model.ErrEmbedding),
		errors.Is(err, model.ErrIndex):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal details out of 5xx responses.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "file is still processing or failed to process"
	case http.StatusGatewayTimeout:
		return "upstream service timed out"
	case http.StatusBadGateway:
		if errors.Is(err, model.ErrEmptyAnswer) {
			return "the model returned an empty answer"
		}
		return "upstream service failed"
	default:
		return "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": publicMessage(status, err)})
}
