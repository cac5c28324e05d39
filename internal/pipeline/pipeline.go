// Package pipeline drives a batch of invoice PDFs through the statistics
// and print sub-pipelines.
//
// Files are processed one at a time. A failure in one file or in one
// sub-pipeline is recorded and logged; the remaining work continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minprint/internal/config"
	"minprint/internal/diag"
	"minprint/pkg/models"
	"minprint/pkg/services/compose"
	"minprint/pkg/services/extract"
	"minprint/pkg/services/raster"
	"minprint/pkg/services/stats"
)

// Stages reported in failures.
const (
	StageDiscover  = "discover"
	StageExtract   = "extract"
	StageOCR       = "ocr"
	StageRasterize = "rasterize"
	StageCompose   = "compose"
	StageReport    = "report"
	StageStore     = "store"
)

// PageOCR recognizes text on rendered pages.
type PageOCR interface {
	ExtractPages(ctx context.Context, pages []models.PageImage) (string, error)
}

// InvoiceSaver persists the per-invoice rows of a run.
type InvoiceSaver interface {
	SaveInvoices(ctx context.Context, runID string, invoices []models.Invoice) error
}

// Deps are the collaborators of a run. Extractor and Scanner are required
// for the statistics mode, Rasterizer and Composer for the print mode.
// OCR and Store are optional.
type Deps struct {
	Extractor  extract.Extractor
	Scanner    *stats.Scanner
	Rasterizer raster.Rasterizer
	Composer   *compose.Composer
	OCR        PageOCR
	Store      InvoiceSaver
	// PageCount checks the page count of an input; nil skips the check.
	PageCount func(path string) (int, error)
	Logger    *slog.Logger
}

// Failure is one isolated per-file (or per-output) error.
type Failure struct {
	Path  string
	Stage string
	Err   error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %s: %v", f.Path, f.Stage, f.Err) }

// Result summarizes a run.
type Result struct {
	RunID    string
	Files    []string
	Report   *stats.Report
	Pages    int
	Sheets   int
	Outputs  []string
	Failures []Failure
}

// OK reports whether every file made it through every requested stage.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

// Driver runs batches with a fixed configuration
type Driver struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

// New checks that the dependencies needed by cfg.Mode are present.
func New(cfg config.Config, deps Deps) (*Driver, error) {
	if cfg.WantStats() && (deps.Extractor == nil || deps.Scanner == nil) {
		return nil, errors.New("stats mode needs an extractor and a scanner")
	}
	if cfg.WantPrint() && (deps.Rasterizer == nil || deps.Composer == nil) {
		return nil, errors.New("print mode needs a rasterizer and a composer")
	}
	if deps.OCR != nil && deps.Rasterizer == nil {
		return nil, errors.New("ocr fallback needs a rasterizer")
	}
	log := deps.Logger
	if log == nil {
		log = diag.Discard()
	}
	return &Driver{cfg: cfg, deps: deps, log: log}, nil
}

// Run processes inputs and writes the outputs into cfg.OutputDir.
// The returned error is reserved for conditions that stop the whole run
// (nothing to process, cancellation, unwritable output directory);
// per-file problems are in Result.Failures.
func (d *Driver) Run(ctx context.Context, runID string, inputs []string) (*Result, error) {
	res := &Result{RunID: runID, Report: stats.NewReport()}
	files, failures := Discover(inputs, d.cfg.IsRecursive(), d.cfg.Outputs.Names())
	for _, f := range failures {
		d.fail(res, f)
	}
	if len(files) == 0 {
		return res, ErrNoInputs
	}
	res.Files = files
	if err := os.MkdirAll(d.cfg.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	d.log.Info("run start", "files", len(files), "mode", d.cfg.Mode, "dpi", d.cfg.DPI)
	start := time.Now()

	var pages []models.PageImage
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d.log.Debug("file start", "file", path, "n", i+1, "of", len(files))
		inv := d.processFile(ctx, res, path)
		pages = append(pages, inv.Pages...)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Pages = len(pages)

	if d.cfg.WantStats() {
		d.writeReports(ctx, res)
	}
	if d.cfg.WantPrint() {
		d.writePrint(ctx, res, pages)
	}
	d.log.Info("run finish",
		"files", len(files),
		"pages", res.Pages,
		"sheets", res.Sheets,
		"failures", len(res.Failures),
		"dur_ms", time.Since(start).Milliseconds())
	return res, ctx.Err()
}

func (d *Driver) processFile(ctx context.Context, res *Result, path string) models.InvoiceFile {
	inv := models.InvoiceFile{Path: path, Carrier: models.Unknown}
	d.checkPageCount(path)

	rasterized := false
	if d.cfg.WantPrint() {
		pages, err := d.deps.Rasterizer.Rasterize(ctx, path, d.cfg.DPI)
		if err != nil {
			d.fail(res, Failure{Path: path, Stage: StageRasterize, Err: err})
		} else {
			inv.Pages, rasterized = pages, true
			d.log.Debug("rasterized", "file", path, "pages", len(pages))
		}
	}
	if !d.cfg.WantStats() {
		return inv
	}

	text, err := d.deps.Extractor.Extract(ctx, path)
	if err != nil {
		d.fail(res, Failure{Path: path, Stage: StageExtract, Err: err})
		return inv
	}
	if strings.TrimSpace(strings.ReplaceAll(text, extract.PageBreak, "")) == "" && d.deps.OCR != nil {
		d.log.Info("empty text layer, using ocr", "file", path)
		pages := inv.Pages
		if !rasterized {
			if pages, err = d.deps.Rasterizer.Rasterize(ctx, path, d.cfg.DPI); err != nil {
				d.fail(res, Failure{Path: path, Stage: StageOCR, Err: err})
				return inv
			}
		}
		if text, err = d.deps.OCR.ExtractPages(ctx, pages); err != nil {
			d.fail(res, Failure{Path: path, Stage: StageOCR, Err: err})
			return inv
		}
	}
	inv.Text = text

	scan := d.deps.Scanner.Scan(path, text)
	inv.Carrier = scan.Carrier
	for _, w := range scan.Warnings {
		d.log.Warn("scan", "file", path, "code", string(diag.Classify(w)), "err", w)
	}
	res.Report.Add(scan)
	d.log.Debug("scanned", "file", path, "carrier", string(scan.Carrier), "entries", len(scan.Entries))
	return inv
}

// checkPageCount logs invoices that are not single-page. Signed PDFs that
// cannot be parsed are only logged at debug level.
func (d *Driver) checkPageCount(path string) {
	if d.deps.PageCount == nil {
		return
	}
	n, err := d.deps.PageCount(path)
	switch {
	case err != nil:
		d.log.Debug("page count unavailable", "file", path, "err", err)
	case n != 1:
		d.log.Warn("invoice is expected to be one page", "file", path, "pages", n)
	}
}

func (d *Driver) writeReports(ctx context.Context, res *Result) {
	outs := []struct {
		name  string
		write func(io.Writer, *stats.Report) error
	}{
		{d.cfg.Outputs.StatsCSV, stats.WriteCSV},
		{d.cfg.Outputs.StatsText, stats.WriteText},
		{d.cfg.Outputs.InvoicesCSV, stats.WriteInvoicesCSV},
	}
	for _, o := range outs {
		path := filepath.Join(d.cfg.OutputDir, o.name)
		err := writeFileAtomic(path, func(w io.Writer) error { return o.write(w, res.Report) })
		if err != nil {
			d.fail(res, Failure{Path: path, Stage: StageReport, Err: err})
			continue
		}
		res.Outputs = append(res.Outputs, path)
	}

	if d.deps.Store != nil {
		if err := d.deps.Store.SaveInvoices(ctx, res.RunID, res.Report.Invoices); err != nil {
			d.fail(res, Failure{Path: d.cfg.OutputDir, Stage: StageStore, Err: err})
		}
	}
}

func (d *Driver) writePrint(ctx context.Context, res *Result, pages []models.PageImage) {
	if len(pages) == 0 {
		d.log.Warn("no pages rasterized, print document not written")
		return
	}
	sheets := d.deps.Composer.Plan(pages)
	out := filepath.Join(d.cfg.OutputDir, d.cfg.Outputs.PrintPDF)
	if err := d.deps.Composer.WritePDF(ctx, sheets, out); err != nil {
		d.fail(res, Failure{Path: out, Stage: StageCompose, Err: err})
		return
	}
	res.Sheets = len(sheets)
	res.Outputs = append(res.Outputs, out)
	d.log.Info("print document written", "file", out, "sheets", len(sheets))
}

func (d *Driver) fail(res *Result, f Failure) {
	res.Failures = append(res.Failures, f)
	d.log.Error("file failed", "file", f.Path, "stage", f.Stage, "code", string(diag.Classify(f.Err)), "err", f.Err)
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
