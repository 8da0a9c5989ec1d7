package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
)

func TestDiskBlobs(t *testing.T) {
	ctx := context.Background()
	blobs, err := NewDiskBlobs(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, blobs.UploadRaw(ctx, "uploads/x/a.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	data, err := blobs.Fetch(ctx, model.File{Key: "uploads/x/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	url, err := blobs.PresignURL(ctx, "uploads/x/a.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	_, err = blobs.Fetch(ctx, model.File{Key: "uploads/missing.pdf"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = blobs.UploadRaw(ctx, "../escape.pdf", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
