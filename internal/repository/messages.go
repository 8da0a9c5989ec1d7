package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

var _ storage.MessageStore = (*MessageRepository)(nil)

// MessageRepository stores the chat log. Rows are ordered by created_at with
// the seq column as a tiebreak, so two messages written in the same
// microsecond still have a total order.
type MessageRepository struct {
	db database.DBTX
}

func NewMessageRepository(db database.DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts msg. created_at is taken from clock_timestamp() and bumped
// past the latest message of the file so it is strictly increasing.
func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, text, is_user_message, file_id, user_id, created_at)
		SELECT $1::TEXT, $2::TEXT, $3::BOOLEAN, $4::TEXT, $5::TEXT, GREATEST(clock_timestamp(), COALESCE(MAX(created_at) + interval '1 microsecond', clock_timestamp()))
		FROM messages WHERE file_id=$4
		RETURNING created_at
	`, msg.ID, msg.Text, msg.IsUserMessage, msg.FileID, msg.UserID).Scan(&msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("file %s: %w", msg.FileID, model.ErrNotFound)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const selectMessage = `
	SELECT id, text, is_user_message, file_id, user_id, created_at
	FROM messages `

func collectMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Text, &m.IsUserMessage, &m.FileID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Recent selects the newest n rows and reverses them to oldest first.
func (r *MessageRepository) Recent(ctx context.Context, fileID, userID string, n int) ([]model.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, selectMessage+`
		WHERE file_id=$1 AND user_id=$2
		ORDER BY created_at DESC, seq DESC
		LIMIT $3`, fileID, userID, n)
	if err != nil {
		return nil, fmt.Errorf("select recent messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Page fetches limit+1 rows to learn whether another page exists.
func (r *MessageRepository) Page(ctx context.Context, fileID, userID string, limit int, cursor string) ([]model.Message, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}
	var cursorSeq *int64
	if cursor != "" {
		var seq int64
		err := r.db.QueryRow(ctx, `SELECT seq FROM messages WHERE id=$1 AND file_id=$2`, cursor, fileID).Scan(&seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", fmt.Errorf("cursor %q: %w", cursor, model.ErrValidation)
		}
		if err != nil {
			return nil, "", fmt.Errorf("resolve cursor: %w", err)
		}
		cursorSeq = &seq
	}
	rows, err := r.db.Query(ctx, selectMessage+`
		WHERE file_id=$1 AND user_id=$2 AND ($3::BIGINT IS NULL OR seq < $3)
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`, fileID, userID, cursorSeq, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("select messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(msgs) > limit {
		msgs = msgs[:limit]
		next = msgs[limit-1].ID
	}
	return msgs, next, nil
}
