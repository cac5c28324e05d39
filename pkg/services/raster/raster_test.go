package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/pkg/models"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.White)
	require.NoError(t, imaging.Save(img, path))
}

func TestLoadPagesNumericOrder(t *testing.T) {
	dir := t.TempDir()
	// ten pages: pdftoppm pads to two digits
	for i := 1; i <= 10; i++ {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("page-%02d.png", i)), 10+i, 20)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	pages, err := LoadPages(dir, "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 10)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, "a.pdf", p.File)
		assert.Equal(t, 11+i, p.Width)
		assert.Equal(t, 20, p.Height)
		_, _, err := image.DecodeConfig(bytes.NewReader(p.Data))
		assert.NoError(t, err)
	}
}

func TestLoadPagesEmpty(t *testing.T) {
	_, err := LoadPages(t.TempDir(), "a.pdf")
	require.Error(t, err)
}

func TestNewPdftoppmMissingBinary(t *testing.T) {
	_, err := NewPdftoppm(filepath.Join(t.TempDir(), "bin"), "", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrToolNotFound))
}
