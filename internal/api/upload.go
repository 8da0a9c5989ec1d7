package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Quill/internal/auth"
	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/model"
)

const pdfContentType = "application/pdf"

// handleUpload stores a multipart PDF, presigns it and then runs the same
// logic as the upload completion hook.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := auth.UserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("expecting multipart form: %w", model.ErrValidation))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("missing file part: %w", model.ErrValidation))
		return
	}
	defer part.Close()
	tmp, err := s.persistTemp(part)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	if tmp.contentType != pdfContentType {
		s.writeError(w, r, fmt.Errorf("only PDF files supported: %w", model.ErrValidation))
		return
	}

	key := fmt.Sprintf("uploads/%s/%s", uuid.NewString(), filepath.Base(tmp.filename))
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		s.writeError(w, r, fmt.Errorf("rewind temp file: %w", err))
		return
	}
	if err := s.blobs.UploadRaw(ctx, key, tmp.f, tmp.size, tmp.contentType); err != nil {
		s.writeError(w, r, fmt.Errorf("store upload: %w", err))
		return
	}
	url, err := s.blobs.PresignURL(ctx, key)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("presign upload: %w", err))
		return
	}
	s.accept(w, r, ingest.UploadEvent{UserID: userID, Key: key, Name: tmp.filename, URL: url})
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

// persistTemp streams part to a temp file, sniffing the first 512 bytes for
// the content type and enforcing the upload size limit.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "quill-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if s.maxUploadSize > 0 && written > s.maxUploadSize {
				return discard(fmt.Errorf("file exceeds limit (%d bytes): %w", s.maxUploadSize, model.ErrValidation))
			}
			if len(sniff) < 512 {
				chunk := min(n, 512-len(sniff))
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return discard(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return discard(fmt.Errorf("read file: %w: %w", model.ErrValidation, readErr))
		}
	}
	if written == 0 {
		return discard(fmt.Errorf("empty file: %w", model.ErrValidation))
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.pdf"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    filename,
	}, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
