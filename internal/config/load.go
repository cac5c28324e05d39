package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "MINPRINT_"

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		OutputDir:      ".",
		Mode:           ModeBoth,
		DPI:            600,
		JPEGQuality:    90,
		Extractor:      "pdftotext",
		ToolTimeoutSec: 120,
		Outputs: Outputs{
			StatsCSV:    "minprint-stats.csv",
			StatsText:   "minprint-stats.txt",
			InvoicesCSV: "minprint-invoices.csv",
			PrintPDF:    "minprint-a4.pdf",
		},
		Logging: Logging{Level: "info", Format: "text"},
		Server:  Server{Addr: ":8080"},
	}
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadJSON parses a config file or raw JSON, rejecting unknown fields.
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// EnvOverlay builds an override from KEY=VALUE pairs. Besides the MINPRINT_
// keys it honours DATABASE_URL, AZURE_CV_ENDPOINT, AZURE_CV_KEY and PORT.
func EnvOverlay(environ []string) (Config, error) {
	var c Config
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		var err error
		switch k {
		case "DATABASE_URL":
			c.Database.URL = v
		case "AZURE_CV_ENDPOINT":
			c.OCR.Endpoint = v
		case "AZURE_CV_KEY":
			c.OCR.Key = v
		case "PORT":
			c.Server.Addr = ":" + v
		case envPrefix + "INPUTS":
			c.Inputs = splitComma(v)
		case envPrefix + "OUTPUT_DIR":
			c.OutputDir = v
		case envPrefix + "MODE":
			c.Mode = v
		case envPrefix + "RECURSIVE":
			var b bool
			if b, err = strconv.ParseBool(v); err == nil {
				c.Recursive = &b
			}
		case envPrefix + "DPI":
			c.DPI, err = strconv.Atoi(v)
		case envPrefix + "MARGIN_MM":
			var m float64
			if m, err = strconv.ParseFloat(v, 64); err == nil {
				c.MarginMM = &m
			}
		case envPrefix + "JPEG_QUALITY":
			c.JPEGQuality, err = strconv.Atoi(v)
		case envPrefix + "EXTRACTOR":
			c.Extractor = v
		case envPrefix + "POPPLER_DIR":
			c.PopplerDir = v
		case envPrefix + "TOOL_TIMEOUT_SEC":
			c.ToolTimeoutSec, err = strconv.Atoi(v)
		case envPrefix + "WORK_DIR":
			c.WorkDir = v
		case envPrefix + "LOG_LEVEL":
			c.Logging.Level = v
		case envPrefix + "LOG_FORMAT":
			c.Logging.Format = v
		case envPrefix + "ADDR":
			c.Server.Addr = v
		}
		if err != nil {
			return c, fmt.Errorf("%s: %w", k, err)
		}
	}
	return c, nil
}

// Merge applies over on top of base. Zero values in over do not override.
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = append([]string(nil), over.Inputs...)
	}
	setString(&out.OutputDir, over.OutputDir)
	setString(&out.Mode, over.Mode)
	if over.Recursive != nil {
		b := *over.Recursive
		out.Recursive = &b
	}
	if over.DPI != 0 {
		out.DPI = over.DPI
	}
	if over.MarginMM != nil {
		m := *over.MarginMM
		out.MarginMM = &m
	}
	if over.JPEGQuality != 0 {
		out.JPEGQuality = over.JPEGQuality
	}
	setString(&out.Extractor, over.Extractor)
	setString(&out.PopplerDir, over.PopplerDir)
	if over.ToolTimeoutSec != 0 {
		out.ToolTimeoutSec = over.ToolTimeoutSec
	}
	setString(&out.WorkDir, over.WorkDir)

	setString(&out.Outputs.StatsCSV, over.Outputs.StatsCSV)
	setString(&out.Outputs.StatsText, over.Outputs.StatsText)
	setString(&out.Outputs.InvoicesCSV, over.Outputs.InvoicesCSV)
	setString(&out.Outputs.PrintPDF, over.Outputs.PrintPDF)

	if over.Rules != nil {
		r := *over.Rules
		out.Rules = &r
	}
	setString(&out.Logging.Level, over.Logging.Level)
	setString(&out.Logging.Format, over.Logging.Format)
	setString(&out.Database.URL, over.Database.URL)
	setString(&out.OCR.Endpoint, over.OCR.Endpoint)
	setString(&out.OCR.Key, over.OCR.Key)
	setString(&out.Server.Addr, over.Server.Addr)
	return out
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
