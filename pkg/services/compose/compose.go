package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"minprint/pkg/models"
)

// Options controls the output sheets.
type Options struct {
	DPI int
	// MarginMM is the blank border kept around each half of the page.
	MarginMM float64
	// JPEGQuality of the rendered sheets embedded in the PDF (1-100).
	JPEGQuality int
	// WorkDir holds the intermediate sheet images; empty means os.TempDir.
	WorkDir string
}

// Composer lays out page images two per A4 sheet and writes them as a PDF
type Composer struct {
	page    Page
	margin  int
	quality int
	workDir string
}

func NewComposer(opts Options) (*Composer, error) {
	if opts.DPI <= 0 {
		return nil, fmt.Errorf("dpi must be positive, got %d", opts.DPI)
	}
	page := A4(opts.DPI)
	margin := MMToPixels(opts.MarginMM, opts.DPI)
	if margin < 0 || 2*margin >= page.Width || 4*margin >= page.Height {
		return nil, fmt.Errorf("margin %.1fmm does not fit an A4 half page", opts.MarginMM)
	}
	q := opts.JPEGQuality
	if q <= 0 || q > 100 {
		q = 90
	}
	return &Composer{page: page, margin: margin, quality: q, workDir: opts.WorkDir}, nil
}

// Page returns the output page size in pixels.
func (c *Composer) Page() Page { return c.page }

// Plan pairs the images and computes the layout of every sheet.
func (c *Composer) Plan(images []models.PageImage) []PrintSheet {
	sheets := Pair(images)
	for i := range sheets {
		sheets[i].Page = c.page
		for slot, im := range sheets[i].Images {
			if im == nil {
				continue
			}
			sheets[i].Layout[slot] = Layout(c.page, c.margin, slot, im.Width, im.Height)
		}
	}
	return sheets
}

// Render draws one sheet on a white page.
func (c *Composer) Render(sheet PrintSheet) (*image.NRGBA, error) {
	canvas := imaging.New(sheet.Page.Width, sheet.Page.Height, color.White)
	for slot, im := range sheet.Images {
		if im == nil {
			continue
		}
		src, err := imaging.Decode(bytes.NewReader(im.Data))
		if err != nil {
			return nil, fmt.Errorf("decode page %d of %s: %w", im.Index+1, im.File, err)
		}
		p := sheet.Layout[slot]
		b := src.Bounds()
		if b.Dx() != p.Width || b.Dy() != p.Height {
			src = imaging.Resize(src, p.Width, p.Height, imaging.Lanczos)
		}
		canvas = imaging.Paste(canvas, src, image.Pt(p.X, p.Y))
	}
	return canvas, nil
}

// WritePDF renders every sheet and writes them, one A4 page each, to out.
// An existing file at out is replaced.
func (c *Composer) WritePDF(ctx context.Context, sheets []PrintSheet, out string) error {
	if len(sheets) == 0 {
		return errors.New("no sheets to write")
	}
	tmp, err := os.MkdirTemp(c.workDir, "minprint-sheets-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	files := make([]string, 0, len(sheets))
	for i, s := range sheets {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := c.Render(s)
		if err != nil {
			return err
		}
		name := filepath.Join(tmp, fmt.Sprintf("sheet-%04d.jpg", i+1))
		if err := imaging.Save(img, name, imaging.JPEGQuality(c.quality)); err != nil {
			return fmt.Errorf("save sheet %d: %w", i+1, err)
		}
		files = append(files, name)
	}

	// pdfcpu appends to an existing output file
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return err
	}
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImagesFile(files, out, imp, PDFConfig()); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

var disableConfigDir sync.Once

// PDFConfig returns a pdfcpu configuration that never touches the user
// config directory.
func PDFConfig() *model.Configuration {
	disableConfigDir.Do(func() { model.ConfigPath = "disable" })
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages of a PDF file. Parser panics on
// damaged input are returned as errors.
func PageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read %s: %v", filepath.Base(path), r)
		}
	}()
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, PDFConfig())
}
