package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dharsanguruparan/Quill/internal/model"
)

var _ Index = (*Memory)(nil)

// Memory is a brute-force cosine index kept in process memory. It backs the
// single-process server and tests.
type Memory struct {
	mu         sync.RWMutex
	dimensions int
	namespaces map[string]map[string]model.Chunk
}

// NewMemory creates an empty index. A dimensions value of zero accepts
// vectors of any length.
func NewMemory(dimensions int) *Memory {
	return &Memory{
		dimensions: dimensions,
		namespaces: make(map[string]map[string]model.Chunk),
	}
}

func (m *Memory) Upsert(_ context.Context, namespace string, chunks []model.Chunk) error {
	if namespace == "" {
		return fmt.Errorf("upsert: empty namespace: %w", model.ErrIndex)
	}
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("upsert: chunk %d has no id: %w", i, model.ErrIndex)
		}
		if m.dimensions > 0 && len(c.Vector) != m.dimensions {
			return fmt.Errorf("upsert: chunk %d has %d dimensions, want %d: %w", i, len(c.Vector), m.dimensions, model.ErrIndex)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]model.Chunk, len(chunks))
		m.namespaces[namespace] = ns
	}
	for _, c := range chunks {
		c.Namespace = namespace
		c.Vector = append([]float32(nil), c.Vector...)
		ns[c.ID] = c
	}
	return nil
}

func (m *Memory) Query(_ context.Context, namespace string, vector []float32, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if m.dimensions > 0 && len(vector) != m.dimensions {
		return nil, fmt.Errorf("query: vector has %d dimensions, want %d: %w", len(vector), m.dimensions, model.ErrIndex)
	}

	m.mu.RLock()
	matches := make([]model.Match, 0, len(m.namespaces[namespace]))
	for _, c := range m.namespaces[namespace] {
		matches = append(matches, model.Match{Chunk: c, Score: cosine(vector, c.Vector)})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Chunk.ID < matches[j].Chunk.ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	delete(m.namespaces, namespace)
	m.mu.Unlock()
	return nil
}

// Len returns the number of chunks stored under namespace.
func (m *Memory) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
