package raster

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/internal/toolexec"
	"minprint/pkg/models"
)

// The test binary doubles as a fake pdftoppm when MINPRINT_FAKE_PDFTOPPM is
// set: it records its arguments and writes pages the way poppler names them.
func TestMain(m *testing.M) {
	if mode := os.Getenv("MINPRINT_FAKE_PDFTOPPM"); mode != "" {
		os.Exit(fakePdftoppm(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fakePdftoppm(mode string, args []string) int {
	if f := os.Getenv("MINPRINT_FAKE_ARGS"); f != "" {
		_ = os.WriteFile(f, []byte(strings.Join(args, "\n")), 0o644)
	}
	switch mode {
	case "pages":
		prefix := args[len(args)-1]
		for i := 1; i <= 10; i++ {
			img := imaging.New(10+i, 20, color.White)
			if err := imaging.Save(img, fmt.Sprintf("%s-%02d.png", prefix, i)); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 3
			}
		}
		return 0
	case "empty":
		return 0
	case "fail":
		fmt.Fprintln(os.Stderr, "Syntax Error: Couldn't find trailer dictionary")
		return 1
	}
	return 2
}

func fakeRasterizer(t *testing.T, mode string) (*Pdftoppm, string) {
	t.Helper()
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("MINPRINT_FAKE_PDFTOPPM", mode)
	t.Setenv("MINPRINT_FAKE_ARGS", argsFile)
	exe, err := os.Executable()
	require.NoError(t, err)
	return &Pdftoppm{runner: &toolexec.Runner{Path: exe, Timeout: 30 * time.Second}, workDir: t.TempDir()}, argsFile
}

func TestRasterizeRunsPdftoppm(t *testing.T) {
	p, argsFile := fakeRasterizer(t, "pages")
	pages, err := p.Rasterize(context.Background(), "in/a.pdf", 150)
	require.NoError(t, err)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(string(raw), "\n")
	require.Len(t, args, 5)
	assert.Equal(t, []string{"-r", "150", "-png", "in/a.pdf"}, args[:4])
	assert.Equal(t, "page", filepath.Base(args[4]))

	require.Len(t, pages, 10)
	for i, pg := range pages {
		assert.Equal(t, i, pg.Index)
		assert.Equal(t, "in/a.pdf", pg.File)
		assert.Equal(t, 11+i, pg.Width)
	}

	// the scratch directory is removed
	left, err := os.ReadDir(p.workDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRasterizeNoPagesIsRasterizationError(t *testing.T) {
	p, _ := fakeRasterizer(t, "empty")
	_, err := p.Rasterize(context.Background(), "b.pdf", 72)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRasterization))

	var te *models.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "b.pdf", te.Path)
}

func TestRasterizeToolFailure(t *testing.T) {
	p, _ := fakeRasterizer(t, "fail")
	_, err := p.Rasterize(context.Background(), "c.pdf", 72)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRasterization))

	var te *models.ToolError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Stderr, "Syntax Error")
}
