package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dharsanguruparan/Quill/internal/model"
)

var _ Generator = (*Ollama)(nil)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "mistral"
)

// OllamaConfig configures the local Ollama generator.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Options    Options
	HTTPClient *http.Client
}

// Ollama answers prompts with the /api/generate endpoint.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	timeout time.Duration
	opts    Options
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Ollama{
		client:  cfg.HTTPClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		opts:    cfg.Options,
	}
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Options: generateOptions{
			NumPredict:  o.opts.MaxNewTokens,
			Temperature: o.opts.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w: %w", model.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", model.WrapService(model.ErrGeneration, "send request", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("ollama", resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", model.WrapService(model.ErrGeneration, "decode response", err)
	}
	return answerOrEmpty(out.Response)
}
