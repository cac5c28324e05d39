// Package server exposes the statistics pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"minprint/internal/config"
	"minprint/internal/diag"
	"minprint/internal/pipeline"
	"minprint/internal/store"
	"minprint/pkg/models"
)

const maxUploadBytes = 64 << 20

// DriverFactory builds a pipeline driver for one request's configuration.
type DriverFactory func(cfg config.Config, log *slog.Logger) (*pipeline.Driver, error)

// InvoiceLister reads persisted invoice rows.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, f store.Filter) ([]models.Invoice, error)
}

type Server struct {
	cfg     config.Config
	factory DriverFactory
	store   InvoiceLister
	log     *slog.Logger
}

// New returns a server. st may be nil, in which case GET /invoices answers
// 503.
func New(cfg config.Config, factory DriverFactory, st InvoiceLister, log *slog.Logger) *Server {
	if log == nil {
		log = diag.Discard()
	}
	return &Server{cfg: cfg, factory: factory, store: st, log: log}
}

// Router wires the routes onto a gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.MaxMultipartMemory = 8 << 20

	r.POST("/scan-invoice", s.scanInvoice)
	r.GET("/invoices", s.getInvoices)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

type totalRow struct {
	Carrier models.Carrier `json:"carrier"`
	Field   string         `json:"field"`
	Total   float64        `json:"total"`
	Count   int            `json:"count"`
}

type failureRow struct {
	File  string `json:"file"`
	Stage string `json:"stage"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type scanResponse struct {
	RunID     string           `json:"run_id"`
	Files     int              `json:"files"`
	Totals    []totalRow       `json:"totals"`
	Unmatched []string         `json:"unmatched"`
	Invoices  []models.Invoice `json:"invoices"`
	Failures  []failureRow     `json:"failures"`
}

func (s *Server) scanInvoice(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form with field \"files\""})
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	tmp, err := os.MkdirTemp(s.cfg.WorkDir, "minprint-upload-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(tmp)
	inDir := filepath.Join(tmp, "in")
	if err := os.Mkdir(inDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// keep the client's names but avoid collisions and path tricks
	names := make(map[string]string, len(uploads))
	for i, fh := range uploads {
		base := filepath.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
		if !strings.EqualFold(filepath.Ext(base), ".pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: only PDF files are accepted", fh.Filename)})
			return
		}
		dst := filepath.Join(inDir, fmt.Sprintf("%03d-%s", i, base))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		names[dst] = fh.Filename
	}

	runID := uuid.NewString()
	cfg := s.cfg
	cfg.Mode = config.ModeStats
	cfg.OutputDir = filepath.Join(tmp, "out")
	log := s.log.With("run_id", runID)
	d, err := s.factory(cfg, log)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	res, err := d.Run(c.Request.Context(), runID, []string{inDir})
	if err != nil && !errors.Is(err, pipeline.ErrNoInputs) {
		log.Error("scan failed", "code", string(diag.Classify(err)), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := func(p string) string {
		if n, ok := names[p]; ok {
			return n
		}
		return filepath.Base(p)
	}
	resp := scanResponse{RunID: runID, Files: res.Report.Files, Totals: []totalRow{}, Unmatched: []string{}, Failures: []failureRow{}}
	for _, k := range res.Report.TotalKeys() {
		resp.Totals = append(resp.Totals, totalRow{Carrier: k.Carrier, Field: k.Field, Total: res.Report.Totals[k], Count: res.Report.Counts[k]})
	}
	for _, p := range res.Report.Unmatched {
		resp.Unmatched = append(resp.Unmatched, client(p))
	}
	resp.Invoices = make([]models.Invoice, len(res.Report.Invoices))
	for i, inv := range res.Report.Invoices {
		inv.SourcePath = client(inv.SourcePath)
		inv.RunID = runID
		resp.Invoices[i] = inv
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, failureRow{
			File:  client(f.Path),
			Stage: f.Stage,
			Code:  string(diag.Classify(f.Err)),
			Error: f.Err.Error(),
		})
	}

	status := http.StatusOK
	if res.Report.Files == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

func (s *Server) getInvoices(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	f := store.Filter{
		RunID:    c.Query("run_id"),
		Carrier:  models.Carrier(c.Query("carrier")),
		UserName: c.Query("user"),
	}
	for key, dst := range map[string]*int{"year": &f.Year, "quarter": &f.Quarter, "limit": &f.Limit} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be an integer", key)})
			return
		}
		*dst = n
	}
	invoices, err := s.store.ListInvoices(c.Request.Context(), f)
	if err != nil {
		s.log.Error("list invoices", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, invoices)
}
