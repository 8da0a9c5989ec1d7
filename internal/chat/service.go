package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/dharsanguruparan/Quill/internal/generation"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

// Service answers questions. Requests for the same file run one at a time so
// each prompt sees the previous exchange in its history.
type Service struct {
	assembler *Assembler
	generator generation.Generator
	files     storage.FileStore
	messages  storage.MessageStore
	log       logging.Logger
	locks     keyedMutex
}

func NewService(assembler *Assembler, generator generation.Generator, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{
		assembler: assembler,
		generator: generator,
		files:     assembler.files,
		messages:  assembler.messages,
		log:       log.With("component", "chat"),
		locks:     keyedMutex{entries: make(map[string]*lockEntry)},
	}
}

// Answer returns the generated answer and persists it. When generation
// fails or yields no text nothing is persisted for the assistant and the
// error is returned.
func (s *Service) Answer(ctx context.Context, fileID, userID, question string) (string, error) {
	unlock, err := s.locks.lock(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer unlock()

	prompt, err := s.assembler.BuildPrompt(ctx, fileID, userID, question)
	if err != nil {
		return "", err
	}

	answer, err := s.generator.Generate(ctx, prompt.Text)
	if err != nil {
		s.log.Warn(ctx, "generation failed", "file_id", fileID, "error", err)
		return "", err
	}

	reply := model.Message{Text: answer, IsUserMessage: false, FileID: fileID, UserID: userID}
	if err := s.messages.Append(ctx, &reply); err != nil {
		return "", fmt.Errorf("save answer: %w", err)
	}
	s.log.Debug(ctx, "question answered", "file_id", fileID, "chunks", len(prompt.Context), "history", len(prompt.History))
	return answer, nil
}

// History pages through the file's messages, newest first.
func (s *Service) History(ctx context.Context, fileID, userID string, limit int, cursor string) ([]model.Message, string, error) {
	if _, err := s.files.GetOwned(ctx, fileID, userID); err != nil {
		return nil, "", err
	}
	return s.messages.Page(ctx, fileID, userID, limit, cursor)
}

// keyedMutex hands out one lock per key and forgets it once nobody holds
// or waits for it. Each lock is a one-slot channel so waiting can be
// abandoned when the caller's context ends.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
	return func() {
		<-e.slot
		k.release(key, e)
	}, nil
}

func (k *keyedMutex) release(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
