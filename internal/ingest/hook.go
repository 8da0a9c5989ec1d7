package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

// UploadEvent is what the upload service reports once a file is stored.
type UploadEvent struct {
	UserID string
	Key    string
	Name   string
	URL    string
	// Plan is the subscription plan the upload service saw. It is logged
	// for auditing; limits are resolved from the subscription store.
	Plan   string
}

func (e UploadEvent) validate() error {
	var missing []string
	if strings.TrimSpace(e.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(e.Key) == "" {
		missing = append(missing, "key")
	}
	if strings.TrimSpace(e.URL) == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("upload event missing %s: %w", strings.Join(missing, ", "), model.ErrValidation)
	}
	return nil
}

// Hook records completed uploads and schedules their ingestion. The storage
// key identifies an upload: replaying the same event is a no-op.
type Hook struct {
	files    storage.FileStore
	enqueuer queue.Enqueuer
	log      logging.Logger
}

func NewHook(files storage.FileStore, enqueuer queue.Enqueuer, log logging.Logger) *Hook {
	if log == nil {
		log = logging.Nop()
	}
	return &Hook{files: files, enqueuer: enqueuer, log: log.With("component", "upload_hook")}
}

// Accept creates a PENDING file for ev and enqueues it. For an event whose
// key was already seen it returns the existing file together with
// model.ErrDuplicateUpload.
func (h *Hook) Accept(ctx context.Context, ev UploadEvent) (*model.File, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	if existing, err := h.files.FindByKey(ctx, ev.Key); err == nil {
		return existing, fmt.Errorf("upload %s: %w", ev.Key, model.ErrDuplicateUpload)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("lookup upload: %w", err)
	}

	name := ev.Name
	if name == "" {
		name = ev.Key
	}
	file := &model.File{Key: ev.Key, Name: name, URL: ev.URL, UserID: ev.UserID}
	if err := h.files.Create(ctx, file); err != nil {
		if errors.Is(err, model.ErrDuplicateUpload) {
			// Lost a race with a concurrent delivery of the same event.
			existing, findErr := h.files.FindByKey(ctx, ev.Key)
			if findErr != nil {
				return nil, fmt.Errorf("lookup upload: %w", findErr)
			}
			return existing, err
		}
		return nil, fmt.Errorf("create file: %w", err)
	}

	err := h.enqueuer.EnqueueIngest(ctx, queue.IngestPayload{FileID: file.ID, Key: file.Key})
	switch {
	case err == nil:
	case errors.Is(err, model.ErrDuplicateUpload):
		h.log.Warn(ctx, "ingest already scheduled", "file_id", file.ID, "key", file.Key)
	default:
		h.log.Error(ctx, "enqueue ingest failed", "file_id", file.ID, "error", err)
		if uerr := h.files.UpdateStatus(context.WithoutCancel(ctx), file.ID, model.StatusFailed, "could not schedule processing"); uerr != nil {
			h.log.Error(ctx, "mark failed", "file_id", file.ID, "error", uerr)
		}
		return nil, fmt.Errorf("schedule ingest: %w", err)
	}

	h.log.Info(ctx, "upload accepted", "file_id", file.ID, "key", file.Key, "user_id", file.UserID, "plan", ev.Plan)
	return file, nil
}
