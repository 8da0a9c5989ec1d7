// Package storage defines the record stores shared by the API, the worker
// and the chat service, plus an in-memory implementation of all of them.
// The Postgres implementations live in the repository package.
package storage

import (
	"context"
	"time"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// FileStore persists File records.
type FileStore interface {
	// Create inserts a PENDING file. A second file with the same Key
	// returns model.ErrDuplicateUpload.
	Create(ctx context.Context, file *model.File) error
	Get(ctx context.Context, id string) (*model.File, error)
	// GetOwned returns model.ErrNotFound both for missing files and for
	// files owned by another user.
	GetOwned(ctx context.Context, id, userID string) (*model.File, error)
	FindByKey(ctx context.Context, key string) (*model.File, error)
	// UpdateStatus returns model.ErrStatusFinal when the file already
	// reached SUCCESS or FAILED.
	UpdateStatus(ctx context.Context, id string, status model.UploadStatus, msg string) error
}

// MessageStore persists the append-only chat log of each file.
type MessageStore interface {
	// Append assigns ID and CreatedAt. CreatedAt is strictly increasing per
	// file.
	Append(ctx context.Context, msg *model.Message) error
	// Recent returns the n most recent messages of the file ordered oldest
	// to newest.
	Recent(ctx context.Context, fileID, userID string, n int) ([]model.Message, error)
	// Page returns up to limit messages newest first, starting after the
	// message identified by cursor. next is empty on the last page.
	Page(ctx context.Context, fileID, userID string, limit int, cursor string) (msgs []model.Message, next string, err error)
}

// SubscriptionStore records paid subscriptions.
type SubscriptionStore interface {
	IsSubscribed(ctx context.Context, userID string) (bool, error)
	SetSubscription(ctx context.Context, userID string, periodEnd time.Time) error
}
