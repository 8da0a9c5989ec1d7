// Package generation calls a hosted text-generation model to answer a
// rendered prompt.
package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// Generator produces one answer for one prompt. Implementations return
// model.ErrEmptyAnswer when the service answered with blank text and
// model.ErrGeneration for transport or protocol failures.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options are the decoding parameters sent with every request. They are
// fixed at construction time.
type Options struct {
	Temperature    float64
	MaxNewTokens   int
	ReturnFullText bool
}

// DefaultOptions matches the parameters the chat endpoint has always used.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxNewTokens: 300}
}

func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s error (status %d): %s: %w", provider, resp.StatusCode, strings.TrimSpace(string(body)), model.ErrGeneration)
}

func answerOrEmpty(text string) (string, error) {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return "", model.ErrEmptyAnswer
	}
	return answer, nil
}
