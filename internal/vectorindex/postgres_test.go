package vectorindex

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestPostgres_QueryScopesToNamespace(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE namespace = $1")).
		WithArgs("f1", pgxmock.AnyArg(), 4).
		WillReturnRows(pgxmock.NewRows([]string{"id", "page", "content", "score"}).
			AddRow("c1", 2, "three cats", 0.9).
			AddRow("c2", 1, "one dog", 0.4))

	matches, err := NewPostgres(mock).Query(context.Background(), "f1", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].Chunk.ID)
	assert.Equal(t, 2, matches[0].Chunk.Page)
	assert.Equal(t, 0.9, matches[0].Score)
	for _, m := range matches {
		assert.Equal(t, "f1", m.Chunk.Namespace)
	}
}

func TestPostgres_QueryNonPositiveTopK(t *testing.T) {
	mock := newMockPool(t)
	matches, err := NewPostgres(mock).Query(context.Background(), "f1", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPostgres_QueryFailureIsIndexError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM chunks")).
		WillReturnError(context.DeadlineExceeded)

	_, err := NewPostgres(mock).Query(context.Background(), "f1", []float32{1, 0}, 4)
	assert.ErrorIs(t, err, model.ErrIndex)
	assert.True(t, model.Retryable(err))
}

func TestPostgres_DeleteNamespace(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE namespace = $1")).
		WithArgs("f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	assert.NoError(t, NewPostgres(mock).DeleteNamespace(context.Background(), "f1"))
}

func TestPostgres_UpsertBeginFailure(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	err := NewPostgres(mock).Upsert(context.Background(), "f1", []model.Chunk{{ID: "c1", Vector: []float32{1, 0}}})
	assert.ErrorIs(t, err, model.ErrIndex)
}

func TestPostgres_UpsertNothing(t *testing.T) {
	mock := newMockPool(t)
	assert.NoError(t, NewPostgres(mock).Upsert(context.Background(), "f1", nil))
}
