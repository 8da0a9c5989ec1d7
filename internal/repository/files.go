// Package repository implements the storage interfaces on Postgres with pgx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

var _ storage.FileStore = (*FileRepository)(nil)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// FileRepository wraps all SQL touching the files table.
type FileRepository struct {
	db database.DBTX
}

func NewFileRepository(db database.DBTX) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a PENDING file. The unique key constraint turns a repeated
// upload event into model.ErrDuplicateUpload.
func (r *FileRepository) Create(ctx context.Context, file *model.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	file.UploadStatus = model.StatusPending
	file.CreatedAt = now
	file.UpdatedAt = now
	_, err := r.db.Exec(ctx, `
		INSERT INTO files (id, key, name, url, user_id, upload_status, status_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'',$7,$8)
	`, file.ID, file.Key, file.Name, file.URL, file.UserID, file.UploadStatus, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("file with key %q: %w", file.Key, model.ErrDuplicateUpload)
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

const selectFile = `
	SELECT id, key, name, url, user_id, upload_status, status_message, created_at, updated_at
	FROM files `

func scanFile(row pgx.Row) (*model.File, error) {
	var f model.File
	if err := row.Scan(&f.ID, &f.Key, &f.Name, &f.URL, &f.UserID, &f.UploadStatus, &f.StatusMessage, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *FileRepository) Get(ctx context.Context, id string) (*model.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, selectFile+`WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("select file %s: %w", id, err)
	}
	return f, nil
}

// GetOwned filters by owner in SQL so foreign files look exactly like
// missing ones.
func (r *FileRepository) GetOwned(ctx context.Context, id, userID string) (*model.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, selectFile+`WHERE id=$1 AND user_id=$2`, id, userID))
	if err != nil {
		return nil, fmt.Errorf("select file %s: %w", id, err)
	}
	return f, nil
}

func (r *FileRepository) FindByKey(ctx context.Context, key string) (*model.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, selectFile+`WHERE key=$1`, key))
	if err != nil {
		return nil, fmt.Errorf("select file by key %q: %w", key, err)
	}
	return f, nil
}

// UpdateStatus only touches files that are still PENDING or PROCESSING.
// When no row matches it tells a missing file from a final one.
func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status model.UploadStatus, msg string) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, model.ErrValidation)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE files
		SET upload_status=$1, status_message=$2, updated_at=$3
		WHERE id=$4 AND upload_status IN ('PENDING','PROCESSING')
	`, status, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	f, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("file %s is %s: %w", id, f.UploadStatus, model.ErrStatusFinal)
}
