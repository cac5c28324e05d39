// Command minprint totals telecom invoice PDFs and lays their pages out two
// per A4 sheet for printing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"minprint/internal/config"
	"minprint/internal/diag"
	"minprint/internal/pipeline"
	"minprint/pkg/services/stats"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitFatal   = 2
)

// exitError carries the process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// batchRunner is swapped in tests.
var batchRunner = runBatch

func fatal(err error) error  { return &exitError{code: exitFatal, err: err} }
func failed(err error) error { return &exitError{code: exitFailure, err: err} }

func main() {
	_ = config.LoadDotEnv(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Environ(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args, environ []string, stdout, stderr io.Writer) int {
	root := newRootCmd(environ, stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintf(stderr, "minprint: %v\n", ee.err)
		return ee.code
	}
	// flag parsing and argument errors
	fmt.Fprintf(stderr, "minprint: %v\n", err)
	return exitFatal
}

// flags holds the values bound to the command line.
type flags struct {
	config    string
	out       string
	mode      string
	dpi       int
	margin    float64
	recursive bool
	extractor string
	timeout   time.Duration
	logLevel  string
	addr      string
}

func newRootCmd(environ []string, stdout, stderr io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "minprint [flags] <path>...",
		Short: "Total telecom invoice amounts and print invoices two per A4 page",
		Long: `minprint scans invoice PDFs (files or directories), totals the amounts per
carrier into minprint-stats.csv / minprint-stats.txt, and renders every page
into minprint-a4.pdf with two invoices per portrait A4 sheet.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f, environ, args)
			if err != nil {
				return fatal(err)
			}
			if len(cfg.Inputs) == 0 {
				return fatal(errors.New("no input paths given"))
			}
			return batchRunner(cmd.Context(), cfg, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "JSON config file (default $MINPRINT_CONFIG)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	pf.StringVar(&f.extractor, "extractor", "", "text extractor: pdftotext|native")
	pf.DurationVar(&f.timeout, "timeout", 0, "limit for each external tool call, e.g. 2m")

	fl := root.Flags()
	fl.StringVarP(&f.out, "out", "o", "", "output directory")
	fl.StringVarP(&f.mode, "mode", "m", "", "stats|print|both")
	fl.IntVar(&f.dpi, "dpi", 0, "rasterization resolution")
	fl.Float64Var(&f.margin, "margin", 0, "margin around each half page, in mm")
	fl.BoolVarP(&f.recursive, "recursive", "r", true, "descend into subdirectories")

	root.AddCommand(newServeCmd(&f, environ, stderr))
	return root
}

// loadConfig layers defaults, the JSON file, the environment and the
// flags that were set explicitly, then validates the result.
func loadConfig(cmd *cobra.Command, f *flags, environ []string, args []string) (config.Config, error) {
	cfg := config.Defaults()

	path := f.config
	if path == "" {
		path = lookupEnv(environ, "MINPRINT_CONFIG")
	}
	if path != "" {
		fileCfg, err := config.LoadJSON(path, nil)
		if err != nil {
			return cfg, err
		}
		cfg = config.Merge(cfg, fileCfg)
	}

	envCfg, err := config.EnvOverlay(environ)
	if err != nil {
		return cfg, err
	}
	cfg = config.Merge(cfg, envCfg)

	changed := cmd.Flags().Changed
	if changed("out") {
		cfg.OutputDir = f.out
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("dpi") {
		cfg.DPI = f.dpi
	}
	if changed("margin") {
		m := f.margin
		cfg.MarginMM = &m
	}
	if changed("recursive") {
		r := f.recursive
		cfg.Recursive = &r
	}
	if changed("extractor") {
		cfg.Extractor = f.extractor
	}
	if changed("timeout") {
		// round up so a sub-second limit does not become "no limit"
		cfg.ToolTimeoutSec = int((f.timeout + time.Second - 1) / time.Second)
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if len(args) > 0 {
		cfg.Inputs = args
	}
	return cfg, config.Validate(cfg)
}

// lookupEnv returns the last value of key in environ.
func lookupEnv(environ []string, key string) string {
	v := ""
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok && k == key {
			v = val
		}
	}
	return v
}

func runBatch(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	runID := uuid.NewString()
	log := diag.NewLogger(stderr, cfg.Logging.Level, cfg.Logging.Format, runID)

	st, err := openStore(cfg)
	if err != nil {
		return fatal(err)
	}
	if st != nil {
		defer st.Close()
	}
	deps, err := buildDeps(cfg, log)
	if err != nil {
		log.Error("startup failed", "code", string(diag.Classify(err)), "err", err)
		return fatal(err)
	}
	if st != nil {
		deps.Store = st
	}

	d, err := pipeline.New(cfg, deps)
	if err != nil {
		return fatal(err)
	}
	res, err := d.Run(ctx, runID, cfg.Inputs)
	if res != nil {
		for _, f := range res.Failures {
			fmt.Fprintf(stderr, "minprint: %s\n", f.Error())
		}
	}
	switch {
	case errors.Is(err, pipeline.ErrNoInputs):
		return fatal(err)
	case err != nil:
		return failed(err)
	}

	if cfg.WantStats() {
		if err := stats.WriteText(stdout, res.Report); err != nil {
			return failed(err)
		}
	}
	for _, o := range res.Outputs {
		fmt.Fprintf(stdout, "wrote %s\n", o)
	}
	if !res.OK() {
		return failed(fmt.Errorf("%d of %d files had errors", countFiles(res.Failures), len(res.Files)))
	}
	return nil
}

func countFiles(failures []pipeline.Failure) int {
	seen := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		seen[f.Path] = struct{}{}
	}
	return len(seen)
}
