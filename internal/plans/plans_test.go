package plans

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
)

type subs map[string]bool

func (s subs) IsSubscribed(_ context.Context, userID string) (bool, error) {
	if userID == "broken" {
		return false, errors.New("db down")
	}
	return s[userID], nil
}

func TestProvider_Limits(t *testing.T) {
	p := NewProvider(nil, subs{"paid": true})

	free, err := p.Limits(context.Background(), "someone")
	require.NoError(t, err)
	assert.Equal(t, 5, free.PagesPerPDF)
	assert.Equal(t, int64(4<<20), free.MaxFileSizeBytes)
	assert.False(t, free.IsSubscribed)

	pro, err := p.Limits(context.Background(), "paid")
	require.NoError(t, err)
	assert.Equal(t, 25, pro.PagesPerPDF)
	assert.Equal(t, int64(16<<20), pro.MaxFileSizeBytes)
	assert.True(t, pro.IsSubscribed)

	_, err = p.Limits(context.Background(), "broken")
	assert.Error(t, err)
}

func TestProvider_NoLookupMeansFree(t *testing.T) {
	limits, err := NewProvider(DefaultTable(), nil).Limits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Free", limits.Name)
}

func TestParse_OverridesDefaults(t *testing.T) {
	table, err := Parse(strings.NewReader(`
plans:
  free:
    pages_per_pdf: 3
    max_file_size: 1024
`))
	require.NoError(t, err)

	assert.Equal(t, 3, table[Free].PagesPerPDF)
	assert.Equal(t, "free", table[Free].Name)
	assert.Equal(t, 25, table[Pro].PagesPerPDF)
	assert.Equal(t, []string{"free", "pro"}, table.Names())
}

func TestParse_RejectsNonPositiveLimits(t *testing.T) {
	_, err := Parse(strings.NewReader("plans:\n  pro:\n    pages_per_pdf: 0\n    max_file_size: 10\n"))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLoadFile(t *testing.T) {
	table, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTable(), table)

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  pro:\n    name: Team\n    pages_per_pdf: 100\n    max_file_size: 1\n"), 0o600))
	table, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Team", table[Pro].Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
