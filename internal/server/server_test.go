package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/auth"
	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/generation"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/pdf/pdftest"
)

// fakeOllama answers both the embedding and the generate endpoint.
func fakeOllama(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 0, 0}})
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	return &config.Config{
		Address:             "127.0.0.1:0",
		MaxUploadSize:       1 << 20,
		BlobDir:             t.TempDir(),
		ProcessingPool:      1,
		JWTSecret:           []byte("jwt"),
		HookSecret:          []byte("hook"),
		HookTolerance:       time.Minute,
		OllamaURL:           ollamaURL,
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 3,
		GenerationProvider:  config.ProviderOllama,
		GenerationModel:     "mistral",
		Temperature:         0.7,
		MaxNewTokens:        300,
		FetchTimeout:        time.Second,
		EmbedTimeout:        time.Second,
		IndexTimeout:        time.Second,
		GenerateTimeout:     time.Second,
		TopK:                4,
		HistoryWindow:       6,
	}
}

func TestNewGenerator(t *testing.T) {
	cfg := testConfig(t, "http://localhost")

	gen, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &generation.Ollama{}, gen)

	cfg.GenerationProvider = config.ProviderHuggingFace
	gen, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &generation.HuggingFace{}, gen)

	cfg.GenerationProvider = "openai"
	_, err = NewGenerator(cfg)
	assert.Error(t, err)
}

func TestGeneratorOptions_DefaultsFillZeroValues(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	cfg.Temperature = 0
	cfg.MaxNewTokens = 0
	assert.Equal(t, generation.DefaultOptions(), generatorOptions(cfg))

	cfg.Temperature = 0.2
	cfg.MaxNewTokens = 64
	opts := generatorOptions(cfg)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 64, opts.MaxNewTokens)
}

func TestNewLocal_BadPlansFile(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	cfg.PlansFile = "/does/not/exist.yaml"
	_, err := NewLocal(cfg, nil)
	assert.Error(t, err)
}

func authorized(t *testing.T, req *http.Request, userID string) *http.Request {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte("jwt"), time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestLocal_AnswersFromIndexedFile(t *testing.T) {
	ollama := fakeOllama(t, "  Three cats.  ")
	local, err := NewLocal(testConfig(t, ollama.URL), nil)
	require.NoError(t, err)
	ctx := context.Background()

	file := &model.File{Key: "uploads/cats.pdf", Name: "cats.pdf", URL: "file:///cats.pdf", UserID: "u1"}
	require.NoError(t, local.Store.Create(ctx, file))
	require.NoError(t, local.Store.UpdateStatus(ctx, file.ID, model.StatusSuccess, ""))
	require.NoError(t, local.Index.Upsert(ctx, file.ID, []model.Chunk{
		{ID: "c1", Namespace: file.ID, Page: 1, Text: "There are three cats.", Vector: []float32{1, 0, 0}},
	}))

	body := `{"fileId":"` + file.ID + `","message":"How many cats?"}`
	req := authorized(t, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)), "u1")
	rec := httptest.NewRecorder()
	local.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"answer":"Three cats."}`, rec.Body.String())

	msgs, err := local.Store.Recent(ctx, file.ID, "u1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsUserMessage)
	assert.Equal(t, "Three cats.", msgs[1].Text)
}

// upload posts data as a multipart PDF upload owned by u1.
func upload(t *testing.T, local *Local, name string, data []byte) model.File {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authorized(t, httptest.NewRequest(http.MethodPost, "/files", &buf), "u1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	local.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var file model.File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &file))
	return file
}

func TestLocal_UploadedPDFIsIndexedPerPage(t *testing.T) {
	ollama := fakeOllama(t, "Cats sleep.")
	local, err := NewLocal(testConfig(t, ollama.URL), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local.processor.Start(ctx)

	file := upload(t, local, "pets.pdf", pdftest.Build("Cats sleep all day.", "Dogs bark at night."))
	require.Eventually(t, func() bool {
		got, err := local.Store.Get(ctx, file.ID)
		return err == nil && got.UploadStatus == model.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, local.Index.Len(file.ID))

	body := `{"fileId":"` + file.ID + `","message":"What do cats do?"}`
	req := authorized(t, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)), "u1")
	rec := httptest.NewRecorder()
	local.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"answer":"Cats sleep."}`, rec.Body.String())

	cancel()
	local.processor.Wait()
}

func TestLocal_ChatBeforeIngestionIsConflict(t *testing.T) {
	ollama := fakeOllama(t, "unused")
	local, err := NewLocal(testConfig(t, ollama.URL), nil)
	require.NoError(t, err)

	file := upload(t, local, "pets.pdf", pdftest.Build("Cats sleep all day."))

	body := `{"fileId":"` + file.ID + `","message":"Too early?"}`
	req := authorized(t, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)), "u1")
	rec := httptest.NewRecorder()
	local.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	msgs, err := local.Store.Recent(context.Background(), file.ID, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLocal_UnparseableUploadEndsFailed(t *testing.T) {
	ollama := fakeOllama(t, "unused")
	local, err := NewLocal(testConfig(t, ollama.URL), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local.processor.Start(ctx)

	file := upload(t, local, "broken.pdf", []byte("%PDF-1.4\nthis is not a real document"))
	require.Eventually(t, func() bool {
		got, err := local.Store.Get(ctx, file.ID)
		return err == nil && got.UploadStatus == model.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, local.Index.Len(file.ID))

	cancel()
	local.processor.Wait()
}
