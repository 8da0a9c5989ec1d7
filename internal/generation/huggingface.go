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

var _ Generator = (*HuggingFace)(nil)

const (
	DefaultHuggingFaceURL   = "https://api-inference.huggingface.co"
	DefaultHuggingFaceModel = "mistralai/Mistral-7B-Instruct-v0.1"
	DefaultTimeout          = 2 * time.Minute
)

// HuggingFaceConfig configures the Inference API client.
type HuggingFaceConfig struct {
	BaseURL    string
	Model      string
	Token      string
	Timeout    time.Duration
	Options    Options
	HTTPClient *http.Client
}

// HuggingFace calls the text-generation task of the Hugging Face
// Inference API.
type HuggingFace struct {
	client  *http.Client
	baseURL string
	model   string
	token   string
	timeout time.Duration
	opts    Options
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	Temperature    float64 `json:"temperature"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfResponse []struct {
	GeneratedText string `json:"generated_text"`
}

func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHuggingFaceURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHuggingFaceModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &HuggingFace{
		client:  cfg.HTTPClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		opts:    cfg.Options,
	}
}

func (h *HuggingFace) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			Temperature:    h.opts.Temperature,
			MaxNewTokens:   h.opts.MaxNewTokens,
			ReturnFullText: h.opts.ReturnFullText,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/models/"+h.model, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w: %w", model.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", model.WrapService(model.ErrGeneration, "send request", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("huggingface", resp); err != nil {
		return "", err
	}

	var out hfResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", model.WrapService(model.ErrGeneration, "decode response", err)
	}
	if len(out) == 0 {
		return "", model.ErrEmptyAnswer
	}
	return answerOrEmpty(out[0].GeneratedText)
}
