package main

import (
	"log/slog"

	"minprint/internal/config"
	"minprint/internal/pipeline"
	"minprint/internal/store"
	"minprint/pkg/services/compose"
	"minprint/pkg/services/extract"
	"minprint/pkg/services/ocr"
	"minprint/pkg/services/raster"
	"minprint/pkg/services/stats"
)

// buildDeps resolves the external tools and services the configured mode
// needs. A missing poppler binary fails here, before any file is touched.
func buildDeps(cfg config.Config, log *slog.Logger) (pipeline.Deps, error) {
	deps := pipeline.Deps{Logger: log, PageCount: compose.PageCount}
	timeout := cfg.ToolTimeout()

	if cfg.WantStats() {
		ex, err := extract.New(cfg.Extractor, cfg.PopplerDir, timeout)
		if err != nil {
			return deps, err
		}
		sc, err := stats.NewScanner(cfg.ScannerRules())
		if err != nil {
			return deps, err
		}
		deps.Extractor, deps.Scanner = ex, sc
		if cfg.OCR.Enabled() {
			deps.OCR = ocr.NewService(cfg.OCR.Endpoint, cfg.OCR.Key)
			log.Debug("ocr fallback enabled", "endpoint", cfg.OCR.Endpoint)
		}
	}

	if cfg.WantPrint() || deps.OCR != nil {
		rz, err := raster.NewPdftoppm(cfg.PopplerDir, cfg.WorkDir, timeout)
		if err != nil {
			return deps, err
		}
		deps.Rasterizer = rz
	}
	if cfg.WantPrint() {
		cp, err := compose.NewComposer(compose.Options{
			DPI:         cfg.DPI,
			MarginMM:    cfg.Margin(),
			JPEGQuality: cfg.JPEGQuality,
			WorkDir:     cfg.WorkDir,
		})
		if err != nil {
			return deps, err
		}
		deps.Composer = cp
	}
	return deps, nil
}

// openStore connects to the database when one is configured; nil otherwise.
func openStore(cfg config.Config) (*store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	return store.Open(cfg.Database.URL)
}
