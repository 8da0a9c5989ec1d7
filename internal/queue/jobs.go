package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Quill/internal/model"
)

const (
	// IngestFileTask is scheduled once for each completed upload.
	IngestFileTask = "file:ingest"

	ingestTimeout = 10 * time.Minute
)

// IngestPayload is serialized into the task payload so the worker knows which
// file record to ingest.
type IngestPayload struct {
	FileID string `json:"file_id"`
	Key    string `json:"key"`
}

// Enqueuer schedules background ingestion. Scheduling the same Key twice
// returns model.ErrDuplicateUpload.
type Enqueuer interface {
	EnqueueIngest(ctx context.Context, payload IngestPayload) error
}

// NewIngestTask builds the asynq task for payload. The storage key is the
// task id, so a replayed upload event cannot schedule a second run, and
// retries are disabled because ingestion is at most once per event.
func NewIngestTask(payload IngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(IngestFileTask, data,
		asynq.TaskID(payload.Key),
		asynq.MaxRetry(0),
		asynq.Timeout(ingestTimeout),
	), nil
}

// DecodeIngestPayload reverses NewIngestTask.
func DecodeIngestPayload(data []byte) (IngestPayload, error) {
	var p IngestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.FileID == "" || p.Key == "" {
		return p, fmt.Errorf("decode payload: missing file id or key: %w", model.ErrValidation)
	}
	return p, nil
}

// AsynqEnqueuer enqueues ingest tasks on Redis through asynq.
type AsynqEnqueuer struct {
	client *asynq.Client
}

var _ Enqueuer = (*AsynqEnqueuer)(nil)

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueIngest(ctx context.Context, payload IngestPayload) error {
	task, err := NewIngestTask(payload)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("ingest task %s: %w", payload.Key, model.ErrDuplicateUpload)
		}
		return fmt.Errorf("enqueue ingest task: %w", err)
	}
	return nil
}
