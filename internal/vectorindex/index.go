// Package vectorindex stores embedded chunks partitioned by namespace and
// answers nearest-neighbour queries inside a single namespace.
package vectorindex

import (
	"context"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// Index is the vector store used by ingestion and retrieval. A namespace
// holds the chunks of exactly one file; queries never cross namespaces.
type Index interface {
	// Upsert stores chunks under namespace. Either all chunks are stored or
	// none are.
	Upsert(ctx context.Context, namespace string, chunks []model.Chunk) error
	// Query returns at most topK matches ordered by descending score.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.Match, error)
	// DeleteNamespace drops every chunk of namespace. Deleting an empty
	// namespace is not an error.
	DeleteNamespace(ctx context.Context, namespace string) error
}
