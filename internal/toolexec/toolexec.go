// Package toolexec runs the external poppler binaries with a bounded timeout.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"minprint/pkg/models"
)

// Runner resolves and executes one external tool.
type Runner struct {
	// Path is the resolved executable path.
	Path    string
	Timeout time.Duration
	// Dir is prepended to the library search path of the child process,
	// for bundled poppler builds that ship their own shared objects.
	Dir string
}

// Lookup resolves name (optionally inside dir) to an executable.
// A missing binary reports models.ErrToolNotFound.
func Lookup(name, dir string, timeout time.Duration) (*Runner, error) {
	cmd := name
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(cmd), ".exe") {
		cmd += ".exe"
	}
	if dir != "" && !filepath.IsAbs(cmd) && !strings.ContainsRune(cmd, os.PathSeparator) {
		cmd = filepath.Join(dir, cmd)
	}
	p, err := exec.LookPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrToolNotFound, name, err)
	}
	return &Runner{Path: p, Timeout: timeout, Dir: dir}, nil
}

// Output runs the tool and returns its stdout. Failures are returned as
// *models.ToolError of the given kind; a timeout is reported as
// models.ErrToolTimeout instead.
func (r *Runner) Output(ctx context.Context, kind error, file string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.Path, args...)
	if r.Dir != "" {
		libs := r.Dir
		if old := os.Getenv("LD_LIBRARY_PATH"); old != "" {
			libs += string(os.PathListSeparator) + old
		}
		cmd.Env = append(os.Environ(), "LD_LIBRARY_PATH="+libs)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	te := &models.ToolError{
		Tool:   filepath.Base(r.Path),
		Path:   file,
		Kind:   kind,
		Err:    err,
		Stderr: firstLine(stderr.String()),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		te.Kind = models.ErrToolTimeout
		te.Err = ctx.Err()
	} else if ctx.Err() != nil {
		te.Err = ctx.Err()
	}
	return nil, te
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
