// Package worker runs ingestion for tasks delivered by asynq.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	files    storage.FileStore
	ingester ingest.Ingester
	log      logging.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(files storage.FileStore, ingester ingest.Ingester, log logging.Logger) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	return &Processor{files: files, ingester: ingester, log: log.With("component", "worker")}
}

// Handler registers the ingest task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.IngestFileTask, p.HandleIngest)
	return mux
}

// HandleIngest loads the file named by the task and ingests it. Tasks that
// can never succeed are not retried.
func (p *Processor) HandleIngest(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeIngestPayload(task.Payload())
	if err != nil {
		p.log.Error(ctx, "bad ingest payload", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log := p.log.With("file_id", payload.FileID)

	file, err := p.files.Get(ctx, payload.FileID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn(ctx, "file vanished before ingest")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("load file: %w", err)
	}
	if file.Key != payload.Key {
		log.Warn(ctx, "payload key does not match file", "payload_key", payload.Key, "file_key", file.Key)
		return fmt.Errorf("key mismatch for %s: %w", file.ID, asynq.SkipRetry)
	}

	if err := p.ingester.Ingest(ctx, *file); err != nil {
		if errors.Is(err, model.ErrStatusFinal) {
			log.Info(ctx, "file already processed")
			return nil
		}
		return err
	}
	return nil
}
