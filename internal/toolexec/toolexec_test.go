package toolexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/pkg/models"
)

// TestHelperProcess is re-executed as the fake external tool.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MINPRINT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch args[0] {
	case "echo":
		fmt.Fprint(os.Stdout, args[1])
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "Syntax Error: Couldn't read xref table\nmore detail")
		os.Exit(1)
	case "env":
		fmt.Fprint(os.Stdout, os.Getenv(args[1]))
		os.Exit(0)
	case "sleep":
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}
	os.Exit(2)
}

func helper(t *testing.T, timeout time.Duration) *Runner {
	t.Helper()
	t.Setenv("MINPRINT_HELPER_PROCESS", "1")
	r, err := Lookup(os.Args[0], "", timeout)
	require.NoError(t, err)
	return r
}

func TestLookupMissing(t *testing.T) {
	_, err := Lookup("minprint-no-such-tool", "", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrToolNotFound))
}

func TestOutputSuccess(t *testing.T) {
	r := helper(t, 10*time.Second)
	out, err := r.Output(context.Background(), models.ErrExtraction, "a.pdf", "-test.run=TestHelperProcess", "--", "echo", "中国移动")
	require.NoError(t, err)
	assert.Equal(t, "中国移动", string(out))
}

func TestOutputNonZeroExit(t *testing.T) {
	r := helper(t, 10*time.Second)
	_, err := r.Output(context.Background(), models.ErrRasterization, "b.pdf", "-test.run=TestHelperProcess", "--", "fail")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRasterization))

	var te *models.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "b.pdf", te.Path)
	assert.Equal(t, "Syntax Error: Couldn't read xref table", te.Stderr)
}

func TestOutputTimeout(t *testing.T) {
	r := helper(t, 100*time.Millisecond)
	_, err := r.Output(context.Background(), models.ErrExtraction, "c.pdf", "-test.run=TestHelperProcess", "--", "sleep")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrToolTimeout))
	assert.False(t, errors.Is(err, models.ErrExtraction))
}

func TestOutputLibraryPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MINPRINT_HELPER_PROCESS", "1")
	r := &Runner{Path: os.Args[0], Timeout: 10 * time.Second, Dir: dir}
	args := []string{"-test.run=TestHelperProcess", "--", "env", "LD_LIBRARY_PATH"}

	t.Setenv("LD_LIBRARY_PATH", "")
	out, err := r.Output(context.Background(), models.ErrExtraction, "a.pdf", args...)
	require.NoError(t, err)
	assert.Equal(t, dir, string(out))

	t.Setenv("LD_LIBRARY_PATH", "/opt/lib")
	out, err = r.Output(context.Background(), models.ErrExtraction, "a.pdf", args...)
	require.NoError(t, err)
	assert.Equal(t, dir+string(os.PathListSeparator)+"/opt/lib", string(out))
}
