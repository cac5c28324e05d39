package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/internal/toolexec"
	"minprint/pkg/models"
)

// The test binary doubles as a fake pdftotext when MINPRINT_FAKE_PDFTOTEXT
// is set.
func TestMain(m *testing.M) {
	if mode := os.Getenv("MINPRINT_FAKE_PDFTOTEXT"); mode != "" {
		os.Exit(fakePdftotext(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fakePdftotext(mode string, args []string) int {
	if f := os.Getenv("MINPRINT_FAKE_ARGS"); f != "" {
		_ = os.WriteFile(f, []byte(strings.Join(args, "\n")), 0o644)
	}
	switch mode {
	case "text":
		fmt.Print("中国移动\n金额: 10.00\n\f第二页\n\f")
		return 0
	case "fail":
		fmt.Fprintln(os.Stderr, "Syntax Error: Couldn't read xref table")
		return 1
	}
	return 2
}

func fakeExtractor(t *testing.T, mode string) (*Pdftotext, string) {
	t.Helper()
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("MINPRINT_FAKE_PDFTOTEXT", mode)
	t.Setenv("MINPRINT_FAKE_ARGS", argsFile)
	exe, err := os.Executable()
	require.NoError(t, err)
	return &Pdftotext{runner: &toolexec.Runner{Path: exe, Timeout: 30 * time.Second}}, argsFile
}

func TestPdftotextExtract(t *testing.T) {
	e, argsFile := fakeExtractor(t, "text")
	text, err := e.Extract(context.Background(), "in/a.pdf")
	require.NoError(t, err)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "in/a.pdf", "-"}, strings.Split(string(raw), "\n"))

	pages := strings.Split(text, PageBreak)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "金额: 10.00")
	assert.Equal(t, "第二页\n", pages[1])
}

func TestPdftotextFailureIsExtractionError(t *testing.T) {
	e, _ := fakeExtractor(t, "fail")
	_, err := e.Extract(context.Background(), "b.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))

	var te *models.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "b.pdf", te.Path)
	assert.Equal(t, "Syntax Error: Couldn't read xref table", te.Stderr)
}
