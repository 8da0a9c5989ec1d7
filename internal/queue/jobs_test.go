package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
)

func TestIngestTaskRoundTrip(t *testing.T) {
	task, err := NewIngestTask(IngestPayload{FileID: "f1", Key: "uploads/abc.pdf"})
	require.NoError(t, err)
	assert.Equal(t, IngestFileTask, task.Type())

	p, err := DecodeIngestPayload(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, "f1", p.FileID)
	assert.Equal(t, "uploads/abc.pdf", p.Key)
}

func TestDecodeIngestPayload_Invalid(t *testing.T) {
	_, err := DecodeIngestPayload([]byte("{"))
	assert.Error(t, err)

	_, err = DecodeIngestPayload([]byte(`{"file_id":"f1"}`))
	assert.ErrorIs(t, err, model.ErrValidation)
}
