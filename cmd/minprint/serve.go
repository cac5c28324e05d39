package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"minprint/internal/config"
	"minprint/internal/diag"
	"minprint/internal/pipeline"
	"minprint/internal/server"
)

func newServeCmd(f *flags, environ []string, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve invoice statistics over HTTP",
		Long: `serve accepts invoice PDFs on POST /scan-invoice (multipart field "files")
and answers with the per-carrier totals. When DATABASE_URL is set the invoice
rows are stored and can be listed on GET /invoices.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f, environ, nil)
			if err != nil {
				return fatal(err)
			}
			cfg.Mode = config.ModeStats
			return serve(cmd, cfg, stderr)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default :8080 or :$PORT)")
	return cmd
}

func serve(cmd *cobra.Command, cfg config.Config, stderr io.Writer) error {
	log := diag.NewLogger(stderr, cfg.Logging.Level, cfg.Logging.Format, "")
	if diag.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = stderr

	// resolve tools once so a missing binary is reported at startup
	if _, err := buildDeps(cfg, log); err != nil {
		return fatal(err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fatal(err)
	}

	factory := func(c config.Config, l *slog.Logger) (*pipeline.Driver, error) {
		deps, err := buildDeps(c, l)
		if err != nil {
			return nil, err
		}
		if st != nil {
			deps.Store = st
		}
		return pipeline.New(c, deps)
	}
	var lister server.InvoiceLister
	if st != nil {
		defer st.Close()
		lister = st
	}

	err = server.New(cfg, factory, lister, log).Run(cmd.Context(), cfg.Server.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return failed(err)
	}
	return nil
}
