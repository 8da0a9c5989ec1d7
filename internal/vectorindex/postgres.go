package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/model"
)

var _ Index = (*Postgres)(nil)

// Postgres stores chunks in the pgvector-backed chunks table. The table is
// created by the database migrations.
type Postgres struct {
	db database.DBTX
}

func NewPostgres(db database.DBTX) *Postgres {
	return &Postgres{db: db}
}

// Upsert writes every chunk in one transaction using a batch.
func (p *Postgres) Upsert(ctx context.Context, namespace string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return model.WrapService(model.ErrIndex, "begin upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, namespace, page, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE
			 SET namespace = EXCLUDED.namespace, page = EXCLUDED.page,
			     content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			c.ID, namespace, c.Page, c.Text, pgvector.NewVector(c.Vector),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return model.WrapService(model.ErrIndex, fmt.Sprintf("insert chunk %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return model.WrapService(model.ErrIndex, "close batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.WrapService(model.ErrIndex, "commit upsert", err)
	}
	return nil
}

// Query ranks chunks of namespace by cosine distance. Score is 1 - distance.
func (p *Postgres) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := p.db.Query(ctx,
		`SELECT id, page, content, 1 - (embedding <=> $2) AS score
		 FROM chunks
		 WHERE namespace = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		namespace, pgvector.NewVector(vector), topK,
	)
	if err != nil {
		return nil, model.WrapService(model.ErrIndex, "search chunks", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m := model.Match{Chunk: model.Chunk{Namespace: namespace}}
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Page, &m.Chunk.Text, &m.Score); err != nil {
			return nil, model.WrapService(model.ErrIndex, "scan chunk", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapService(model.ErrIndex, "iterate chunks", err)
	}
	return matches, nil
}

func (p *Postgres) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM chunks WHERE namespace = $1`, namespace); err != nil {
		return model.WrapService(model.ErrIndex, "delete namespace", err)
	}
	return nil
}
