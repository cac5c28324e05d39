package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"minprint/pkg/services/stats"
)

// Run modes.
const (
	ModeStats = "stats"
	ModePrint = "print"
	ModeBoth  = "both"
)

// Config is everything a run needs. It is built once in main and passed
// down explicitly.
type Config struct {
	Inputs    []string `json:"inputs,omitempty"`
	OutputDir string   `json:"output_dir"`
	Mode      string   `json:"mode"`
	// Recursive walks input directories into subdirectories. nil means unset.
	Recursive *bool `json:"recursive,omitempty"`

	DPI int `json:"dpi"`
	// MarginMM is the border around each half page. nil means DefaultMarginMM.
	MarginMM    *float64 `json:"margin_mm,omitempty"`
	JPEGQuality int      `json:"jpeg_quality"`

	// Extractor is "pdftotext" or "native".
	Extractor      string `json:"extractor"`
	PopplerDir     string `json:"poppler_dir,omitempty"`
	ToolTimeoutSec int    `json:"tool_timeout_sec"`
	WorkDir        string `json:"work_dir,omitempty"`

	Outputs  Outputs      `json:"outputs"`
	Rules    *stats.Rules `json:"rules,omitempty"`
	Logging  Logging      `json:"logging"`
	Database Database     `json:"database"`
	OCR      OCR          `json:"ocr"`
	Server   Server       `json:"server"`
}

// Outputs are file names inside OutputDir.
type Outputs struct {
	StatsCSV    string `json:"stats_csv"`
	StatsText   string `json:"stats_text"`
	InvoicesCSV string `json:"invoices_csv"`
	PrintPDF    string `json:"print_pdf"`
}

// Names lists the configured output names, so they can be skipped as inputs
// when the output directory is also scanned.
func (o Outputs) Names() []string {
	return []string{o.StatsCSV, o.StatsText, o.InvoicesCSV, o.PrintPDF}
}

type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text|json
}

type Database struct {
	URL string `json:"url,omitempty"`
}

type OCR struct {
	Endpoint string `json:"endpoint,omitempty"`
	Key      string `json:"key,omitempty"`
}

// Enabled reports whether the OCR fallback is configured.
func (o OCR) Enabled() bool { return o.Endpoint != "" && o.Key != "" }

type Server struct {
	Addr string `json:"addr"`
}

// IsRecursive resolves the Recursive flag, defaulting to true.
func (c Config) IsRecursive() bool { return c.Recursive == nil || *c.Recursive }

// DefaultMarginMM applies when no margin is configured.
const DefaultMarginMM = 5.0

// Margin resolves MarginMM. An explicit 0 is kept.
func (c Config) Margin() float64 {
	if c.MarginMM == nil {
		return DefaultMarginMM
	}
	return *c.MarginMM
}

// ToolTimeout is the per-invocation limit for external tools.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// ScannerRules returns the configured rules or the built-in defaults.
func (c Config) ScannerRules() stats.Rules {
	if c.Rules != nil {
		return *c.Rules
	}
	return stats.DefaultRules()
}

// WantStats reports whether the statistics sub-pipeline runs.
func (c Config) WantStats() bool { return c.Mode == ModeStats || c.Mode == ModeBoth }

// WantPrint reports whether the print sub-pipeline runs.
func (c Config) WantPrint() bool { return c.Mode == ModePrint || c.Mode == ModeBoth }

// Validate checks a fully merged configuration.
func Validate(c Config) error {
	var errs []error
	switch c.Mode {
	case ModeStats, ModePrint, ModeBoth:
	default:
		errs = append(errs, fmt.Errorf("mode must be one of stats|print|both, got %q", c.Mode))
	}
	if c.DPI < 72 || c.DPI > 1200 {
		errs = append(errs, fmt.Errorf("dpi must be within [72, 1200], got %d", c.DPI))
	}
	if m := c.Margin(); m < 0 || m > 50 {
		errs = append(errs, fmt.Errorf("margin_mm must be within [0, 50], got %g", m))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within [1, 100], got %d", c.JPEGQuality))
	}
	switch c.Extractor {
	case "pdftotext", "native":
	default:
		errs = append(errs, fmt.Errorf("extractor must be pdftotext or native, got %q", c.Extractor))
	}
	if c.ToolTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout_sec must be positive, got %d", c.ToolTimeoutSec))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	for _, n := range c.Outputs.Names() {
		if n == "" || strings.ContainsAny(n, `/\`) {
			errs = append(errs, fmt.Errorf("output file name %q must be a plain file name", n))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Rules != nil {
		if err := c.Rules.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rules: %w", err))
		}
	}
	return errors.Join(errs...)
}
