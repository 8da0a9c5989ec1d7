// Package embedding turns text into fixed-dimension vectors through an
// external model endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// Embedder converts text into vectors of a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var _ Embedder = (*Ollama)(nil)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768
)

// Config holds configuration for the Ollama embedding client.
type Config struct {
	BaseURL string
	Model   string
	// Timeout bounds each individual embedding call.
	Timeout    time.Duration
	Dimensions int
	// RequestsPerSecond throttles calls to the model endpoint. Zero means
	// unlimited.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Ollama generates embeddings with the Ollama /api/embeddings endpoint.
type Ollama struct {
	client     *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
	dimensions int
	limiter    *rate.Limiter
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllama(cfg Config) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Ollama{
		client:     cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		dimensions: cfg.Dimensions,
		limiter:    limiter,
	}
}

func (o *Ollama) Dimensions() int { return o.dimensions }

// Embed returns the vector for text. Every failure wraps model.ErrEmbedding;
// a timeout additionally wraps model.ErrTimeout.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty: %w", model.ErrEmbedding)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, model.WrapService(model.ErrEmbedding, "rate limit", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(embedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", model.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, model.WrapService(model.ErrEmbedding, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama error (status %d): %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), model.ErrEmbedding)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, model.WrapService(model.ErrEmbedding, "decode response", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned: %w", model.ErrEmbedding)
	}
	if len(out.Embedding) != o.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d: %w", len(out.Embedding), o.dimensions, model.ErrEmbedding)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch embeds texts one after another and stops at the first error.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
