// Package chat answers questions about an uploaded file. It records the
// conversation, retrieves the most similar chunks of the file and asks the
// generation service for an answer.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/storage"
	"github.com/dharsanguruparan/Quill/internal/vectorindex"
)

const (
	DefaultTopK          = 4
	DefaultHistoryWindow = 6
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Prompt is an assembled generation input together with its parts.
type Prompt struct {
	File     *model.File
	Question model.Message
	History  []model.Message
	Context  []model.Match
	Text     string
}

// Assembler builds prompts. It has no locking of its own; Service
// serializes calls per file.
type Assembler struct {
	files        storage.FileStore
	messages     storage.MessageStore
	embedder     QueryEmbedder
	index        vectorindex.Index
	topK         int
	window       int
	indexTimeout time.Duration
}

// AssemblerConfig groups the collaborators and tunables of an Assembler.
type AssemblerConfig struct {
	Files    storage.FileStore
	Messages storage.MessageStore
	Embedder QueryEmbedder
	Index    vectorindex.Index
	// TopK is the number of chunks retrieved per question.
	TopK int
	// HistoryWindow is the number of most recent messages rendered,
	// the current question included.
	HistoryWindow int
	IndexTimeout  time.Duration
}

func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Assembler{
		files:        cfg.Files,
		messages:     cfg.Messages,
		embedder:     cfg.Embedder,
		index:        cfg.Index,
		topK:         cfg.TopK,
		window:       cfg.HistoryWindow,
		indexTimeout: cfg.IndexTimeout,
	}
}

// BuildPrompt checks ownership and readiness, persists the question,
// retrieves context and renders the prompt. The question stays persisted
// even if a later step fails.
func (a *Assembler) BuildPrompt(ctx context.Context, fileID, userID, question string) (*Prompt, error) {
	if strings.TrimSpace(fileID) == "" || strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("fileId and message are required: %w", model.ErrValidation)
	}
	file, err := a.files.GetOwned(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	if file.UploadStatus != model.StatusSuccess {
		return nil, fmt.Errorf("file %s is %s: %w", file.ID, file.UploadStatus, model.ErrNotReady)
	}

	msg := model.Message{Text: question, IsUserMessage: true, FileID: file.ID, UserID: userID}
	if err := a.messages.Append(ctx, &msg); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	vector, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	matches, err := a.query(ctx, file.ID, vector)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	history, err := a.messages.Recent(ctx, file.ID, userID, a.window)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	return &Prompt{
		File:     file,
		Question: msg,
		History:  history,
		Context:  matches,
		Text:     RenderPrompt(history, matches, question),
	}, nil
}

func (a *Assembler) query(ctx context.Context, namespace string, vector []float32) ([]model.Match, error) {
	if a.indexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.indexTimeout)
		defer cancel()
	}
	matches, err := a.index.Query(ctx, namespace, vector, a.topK)
	if err != nil {
		return nil, model.WrapService(model.ErrIndex, "query", err)
	}
	return matches, nil
}
