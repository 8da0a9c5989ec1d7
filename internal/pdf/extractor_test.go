package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/pdf/pdftest"
)

func TestExtractPages_Empty(t *testing.T) {
	pages, err := ExtractPages(nil)
	assert.ErrorIs(t, err, model.ErrParse)
	assert.Nil(t, pages)
}

func TestExtractPages_NotAPDF(t *testing.T) {
	pages, err := Parser{}.Parse([]byte("just some text, definitely not a pdf"))
	assert.ErrorIs(t, err, model.ErrParse)
	assert.Nil(t, pages)
}

func TestExtractPages_MultiPage(t *testing.T) {
	data := pdftest.Build("Cats sleep all day.", "Dogs (mostly) bark.", "")

	pages, err := ExtractPages(data)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Number)
	}
	assert.Contains(t, pages[0].Text, "Cats sleep all day.")
	assert.Contains(t, pages[1].Text, "Dogs (mostly) bark.")
	assert.Empty(t, pages[2].Text)
}
