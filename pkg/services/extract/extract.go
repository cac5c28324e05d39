package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"minprint/internal/toolexec"
	"minprint/pkg/models"
)

// PageBreak separates pages in extracted text.
const PageBreak = "\f"

// Extractor returns the text layer of a PDF file
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Pdftotext runs poppler's pdftotext in layout mode
type Pdftotext struct {
	runner *toolexec.Runner
}

// NewPdftotext resolves the pdftotext binary. popplerDir may be empty to use PATH.
func NewPdftotext(popplerDir string, timeout time.Duration) (*Pdftotext, error) {
	r, err := toolexec.Lookup("pdftotext", popplerDir, timeout)
	if err != nil {
		return nil, err
	}
	return &Pdftotext{runner: r}, nil
}

// Extract writes the text to stdout ("-"). pdftotext separates pages with a form feed.
func (e *Pdftotext) Extract(ctx context.Context, path string) (string, error) {
	out, err := e.runner.Output(ctx, models.ErrExtraction, path, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Native reads the text layer in-process, for hosts without poppler
type Native struct{}

func (Native) Extract(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", &models.ToolError{Tool: "native", Path: path, Kind: models.ErrExtraction, Err: err}
	}
	defer func() { _ = f.Close() }()

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", &models.ToolError{Tool: "native", Path: path, Kind: models.ErrExtraction, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, PageBreak), nil
}

// New builds the extractor named in the configuration.
func New(name, popplerDir string, timeout time.Duration) (Extractor, error) {
	switch name {
	case "", "pdftotext":
		return NewPdftotext(popplerDir, timeout)
	case "native":
		return Native{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}
