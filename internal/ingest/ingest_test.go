package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/loader"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/plans"
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/storage"
	"github.com/dharsanguruparan/Quill/internal/vectorindex"
)

type fakeLoader struct {
	doc *loader.Document
	err error
}

func (f fakeLoader) Load(context.Context, model.File, int64) (*loader.Document, error) {
	return f.doc, f.err
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

// leakyIndex writes the first chunk and then fails, the way a remote index
// can fail mid-batch.
type leakyIndex struct {
	*vectorindex.Memory
}

func (l leakyIndex) Upsert(ctx context.Context, ns string, chunks []model.Chunk) error {
	_ = l.Memory.Upsert(ctx, ns, chunks[:1])
	return fmt.Errorf("upsert: %w", model.ErrIndex)
}

var farFuture = time.Now().Add(24 * time.Hour)

func pages(n int) []model.Page {
	out := make([]model.Page, n)
	for i := range out {
		out[i] = model.Page{Number: i + 1, Text: fmt.Sprintf("page %d text", i+1)}
	}
	return out
}

type fixture struct {
	store    *storage.MemoryStore
	index    *vectorindex.Memory
	embedder *fakeEmbedder
	file     *model.File
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	file := &model.File{Key: "uploads/a.pdf", Name: "a.pdf", URL: "https://files/a.pdf", UserID: "u1"}
	require.NoError(t, store.Create(context.Background(), file))
	return &fixture{store: store, index: vectorindex.NewMemory(2), embedder: &fakeEmbedder{}, file: file}
}

func (f *fixture) pipeline(l DocumentLoader, idx vectorindex.Index) *Pipeline {
	if idx == nil {
		idx = f.index
	}
	return NewPipeline(Deps{
		Files:    f.store,
		Loader:   l,
		Limits:   plans.NewProvider(plans.DefaultTable(), f.store),
		Embedder: f.embedder,
		Index:    idx,
	})
}

func (f *fixture) status(t *testing.T) model.UploadStatus {
	t.Helper()
	got, err := f.store.Get(context.Background(), f.file.ID)
	require.NoError(t, err)
	return got.UploadStatus
}

func TestIngest_Success(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 1024, Pages: pages(2)}}, nil)

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusSuccess, f.status(t))
	assert.Equal(t, 2, f.index.Len(f.file.ID))

	matches, err := f.index.Query(context.Background(), f.file.ID, []float32{11, 1}, 4)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, f.file.ID, m.Chunk.Namespace)
		assert.Contains(t, []int{1, 2}, m.Chunk.Page)
	}
}

func TestIngest_BlankPagesAreNotIndexed(t *testing.T) {
	f := newFixture(t)
	doc := &loader.Document{Size: 10, Pages: []model.Page{{Number: 1, Text: "hello"}, {Number: 2, Text: "  "}}}

	require.NoError(t, f.pipeline(fakeLoader{doc: doc}, nil).Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusSuccess, f.status(t))
	assert.Equal(t, 1, f.index.Len(f.file.ID))
	assert.Equal(t, 1, f.embedder.calls)
}

func TestIngest_PageQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 1024, Pages: pages(6)}}, nil)

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	got, err := f.store.Get(context.Background(), f.file.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.UploadStatus)
	assert.Contains(t, got.StatusMessage, "6 pages")
	assert.Zero(t, f.index.Len(f.file.ID))
	assert.Zero(t, f.embedder.calls)
}

func TestIngest_SizeQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 5 << 20, Pages: pages(1)}}, nil)

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusFailed, f.status(t))
	assert.Zero(t, f.index.Len(f.file.ID))
}

type failingParser struct{ calls int }

func (p *failingParser) Parse([]byte) ([]model.Page, error) {
	p.calls++
	return nil, fmt.Errorf("truncated xref: %w", model.ErrParse)
}

type bytesFetcher []byte

func (b bytesFetcher) Fetch(context.Context, model.File) ([]byte, error) {
	return b, nil
}

func TestIngest_OversizeFileFailsOnQuotaBeforeParsing(t *testing.T) {
	f := newFixture(t)
	parser := &failingParser{}
	l := loader.New(bytesFetcher(make([]byte, 4<<20+1)), parser, 0)

	require.NoError(t, f.pipeline(l, nil).Ingest(context.Background(), *f.file))

	got, err := f.store.Get(context.Background(), f.file.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.UploadStatus)
	assert.Contains(t, got.StatusMessage, model.ErrQuotaExceeded.Error())
	assert.NotContains(t, got.StatusMessage, model.ErrParse.Error())
	assert.Zero(t, parser.calls)
}

func TestIngest_SubscriberGetsProLimits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetSubscription(context.Background(), "u1", farFuture))
	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 1024, Pages: pages(6)}}, nil)

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusSuccess, f.status(t))
	assert.Equal(t, 6, f.index.Len(f.file.ID))
}

// wideEmbedder claims more dimensions than the vectors it returns.
type wideEmbedder struct{ *fakeEmbedder }

func (wideEmbedder) Dimensions() int { return 3 }

func TestIngest_VectorDimensionMismatchFails(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(Deps{
		Files:    f.store,
		Loader:   fakeLoader{doc: &loader.Document{Size: 10, Pages: pages(2)}},
		Limits:   plans.NewProvider(nil, f.store),
		Embedder: wideEmbedder{f.embedder},
		Index:    f.index,
	})

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	got, err := f.store.Get(context.Background(), f.file.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.UploadStatus)
	assert.Contains(t, got.StatusMessage, "want 3")
	assert.Zero(t, f.index.Len(f.file.ID))
}

func TestIngest_FetchFailure(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(fakeLoader{err: fmt.Errorf("get: %w", model.ErrFetch)}, nil)

	require.NoError(t, p.Ingest(context.Background(), *f.file))
	assert.Equal(t, model.StatusFailed, f.status(t))
}

func TestIngest_EmbeddingFailureLeavesNoVectors(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = fmt.Errorf("embed: %w", model.ErrEmbedding)
	require.NoError(t, f.index.Upsert(context.Background(), f.file.ID, []model.Chunk{{ID: "stale", Vector: []float32{1, 1}}}))

	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 10, Pages: pages(2)}}, nil)
	require.NoError(t, p.Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusFailed, f.status(t))
	assert.Zero(t, f.index.Len(f.file.ID))
}

func TestIngest_PartialIndexWriteIsCleanedUp(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(fakeLoader{doc: &loader.Document{Size: 10, Pages: pages(3)}}, leakyIndex{f.index})

	require.NoError(t, p.Ingest(context.Background(), *f.file))

	assert.Equal(t, model.StatusFailed, f.status(t))
	assert.Zero(t, f.index.Len(f.file.ID))
}

func TestIngest_FinalFileIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateStatus(ctx, f.file.ID, model.StatusFailed, "earlier"))

	err := f.pipeline(fakeLoader{doc: &loader.Document{Pages: pages(1)}}, nil).Ingest(ctx, *f.file)
	assert.ErrorIs(t, err, model.ErrStatusFinal)
	assert.Zero(t, f.embedder.calls)
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.IngestPayload
	err      error
}

func (r *recordingEnqueuer) EnqueueIngest(_ context.Context, p queue.IngestPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, p)
	return nil
}

func TestHook_AcceptCreatesPendingFileOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	enq := &recordingEnqueuer{}
	hook := NewHook(store, enq, nil)
	ev := UploadEvent{UserID: "u1", Key: "uploads/k.pdf", Name: "k.pdf", URL: "https://files/k.pdf"}

	file, err := hook.Accept(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, file.UploadStatus)
	assert.Equal(t, "u1", file.UserID)

	again, err := hook.Accept(ctx, ev)
	assert.ErrorIs(t, err, model.ErrDuplicateUpload)
	assert.Equal(t, file.ID, again.ID)

	require.Len(t, enq.payloads, 1)
	assert.Equal(t, queue.IngestPayload{FileID: file.ID, Key: ev.Key}, enq.payloads[0])
}

func TestHook_AcceptLogsReportedPlan(t *testing.T) {
	var logs bytes.Buffer
	hook := NewHook(storage.NewMemoryStore(), &recordingEnqueuer{}, logging.NewWithWriter(&logs, "info"))

	file, err := hook.Accept(context.Background(), UploadEvent{UserID: "u1", Key: "k", URL: "https://files/k", Plan: "pro"})
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"msg":"upload accepted"`)
	assert.Contains(t, logs.String(), `"plan":"pro"`)
	assert.Contains(t, logs.String(), `"file_id":"`+file.ID+`"`)
}

func TestHook_AcceptValidates(t *testing.T) {
	hook := NewHook(storage.NewMemoryStore(), &recordingEnqueuer{}, nil)
	_, err := hook.Accept(context.Background(), UploadEvent{Key: "k"})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "userId")
}

func TestHook_EnqueueFailureMarksFileFailed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	hook := NewHook(store, &recordingEnqueuer{err: errors.New("redis down")}, nil)

	_, err := hook.Accept(ctx, UploadEvent{UserID: "u1", Key: "k", URL: "https://files/k"})
	require.Error(t, err)

	f, err := store.FindByKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.UploadStatus)
}

func TestHook_ThenPipeline(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	enq := &recordingEnqueuer{}
	file, err := NewHook(store, enq, nil).Accept(ctx, UploadEvent{UserID: "u1", Key: "k", URL: "https://files/k"})
	require.NoError(t, err)

	idx := vectorindex.NewMemory(2)
	p := NewPipeline(Deps{
		Files:    store,
		Loader:   fakeLoader{doc: &loader.Document{Size: 10, Pages: pages(2)}},
		Limits:   plans.NewProvider(nil, store),
		Embedder: &fakeEmbedder{},
		Index:    idx,
	})
	require.NoError(t, p.Ingest(ctx, *file))

	got, err := store.Get(ctx, enq.payloads[0].FileID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.UploadStatus)
	assert.Equal(t, 2, idx.Len(file.ID))
}
