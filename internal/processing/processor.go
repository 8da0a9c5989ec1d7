// Package processing runs ingestion on an in-process goroutine pool. It
// stands in for the asynq queue when Quill runs as a single binary.
package processing

import (
	"context"
	"fmt"
	"sync"

	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

var _ queue.Enqueuer = (*Processor)(nil)

const (
	queueFullMessage = "processing queue full"
	shutdownMessage  = "server shutting down"
)

// Processor consumes ingest payloads. Each storage key is accepted at most
// once for the lifetime of the process. Jobs still queued at shutdown are
// marked FAILED.
type Processor struct {
	files    storage.FileStore
	ingester ingest.Ingester
	log      logging.Logger
	queue    chan queue.IngestPayload
	workers  int

	// mu guards seen and stopped, and is held while sending on queue so a
	// drain never misses a job.
	mu      sync.Mutex
	seen    map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(files storage.FileStore, ingester ingest.Ingester, workers int, log logging.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Processor{
		files:    files,
		ingester: ingester,
		log:      log.With("component", "processing"),
		queue:    make(chan queue.IngestPayload, workers*4),
		workers:  workers,
		seen:     make(map[string]struct{}),
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled, after
// failing whatever is left in the queue.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker started by Start has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// EnqueueIngest queues payload without blocking. A full queue or a stopped
// processor marks the file FAILED so the API reflects reality.
func (p *Processor) EnqueueIngest(ctx context.Context, payload queue.IngestPayload) error {
	p.mu.Lock()
	if _, dup := p.seen[payload.Key]; dup {
		p.mu.Unlock()
		return fmt.Errorf("ingest task %s: %w", payload.Key, model.ErrDuplicateUpload)
	}
	p.seen[payload.Key] = struct{}{}
	reason := ""
	if p.stopped {
		reason = shutdownMessage
	} else {
		select {
		case p.queue <- payload:
		default:
			reason = queueFullMessage
		}
	}
	p.mu.Unlock()

	if reason != "" {
		p.reject(ctx, payload, reason)
	}
	return nil
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.drain(ctx)
			return
		}
		select {
		case <-ctx.Done():
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

// drain stops further enqueues and fails every job still queued.
func (p *Processor) drain(ctx context.Context) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case job := <-p.queue:
			p.reject(ctx, job, shutdownMessage)
		default:
			return
		}
	}
}

func (p *Processor) reject(ctx context.Context, job queue.IngestPayload, reason string) {
	p.log.Warn(ctx, "dropping ingest job", "file_id", job.FileID, "reason", reason)
	if err := p.files.UpdateStatus(ctx, job.FileID, model.StatusFailed, reason); err != nil {
		p.log.Error(ctx, "mark failed", "file_id", job.FileID, "error", err)
	}
}

func (p *Processor) process(ctx context.Context, job queue.IngestPayload) {
	file, err := p.files.Get(ctx, job.FileID)
	if err != nil {
		p.log.Error(ctx, "load file", "file_id", job.FileID, "error", err)
		return
	}
	if err := p.ingester.Ingest(ctx, *file); err != nil {
		p.log.Error(ctx, "ingest", "file_id", job.FileID, "error", err)
	}
}
