package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"minprint/internal/toolexec"
	"minprint/pkg/models"
)

// Rasterizer renders every page of a PDF to an image, in page order
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, dpi int) ([]models.PageImage, error)
}

// Pdftoppm renders pages with poppler's pdftoppm into a scratch directory
type Pdftoppm struct {
	runner  *toolexec.Runner
	workDir string
}

// NewPdftoppm resolves the pdftoppm binary. workDir is the parent of the
// per-file scratch directories; empty means os.TempDir.
func NewPdftoppm(popplerDir, workDir string, timeout time.Duration) (*Pdftoppm, error) {
	r, err := toolexec.Lookup("pdftoppm", popplerDir, timeout)
	if err != nil {
		return nil, err
	}
	return &Pdftoppm{runner: r, workDir: workDir}, nil
}

func (p *Pdftoppm) Rasterize(ctx context.Context, path string, dpi int) ([]models.PageImage, error) {
	tmp, err := os.MkdirTemp(p.workDir, "minprint-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	prefix := filepath.Join(tmp, "page")
	if _, err := p.runner.Output(ctx, models.ErrRasterization, path, "-r", strconv.Itoa(dpi), "-png", path, prefix); err != nil {
		return nil, err
	}
	pages, err := LoadPages(tmp, path)
	if err != nil {
		return nil, &models.ToolError{Tool: "pdftoppm", Path: path, Kind: models.ErrRasterization, Err: err}
	}
	return pages, nil
}

// LoadPages reads the page-N.png files pdftoppm leaves in dir, ordered by N.
// pdftoppm zero-pads N to the width of the page count, so N is parsed rather
// than sorted lexically.
func LoadPages(dir, owner string) ([]models.PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".png") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		i := strings.LastIndexByte(stem, '-')
		if i < 0 {
			continue
		}
		n, err := strconv.Atoi(stem[i+1:])
		if err != nil {
			continue
		}
		files = append(files, numbered{n: n, name: name})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no page images produced")
	}
	sort.Slice(files, func(a, b int) bool { return files[a].n < files[b].n })

	pages := make([]models.PageImage, 0, len(files))
	for i, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, err
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
		pages = append(pages, models.PageImage{
			File:   owner,
			Index:  i,
			Data:   data,
			Width:  cfg.Width,
			Height: cfg.Height,
		})
	}
	return pages, nil
}
