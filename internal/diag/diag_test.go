package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/pkg/models"
)

func TestClassify(t *testing.T) {
	cases := map[Code]error{
		CodeTimeout:       &models.ToolError{Kind: models.ErrToolTimeout, Err: context.DeadlineExceeded},
		CodeCancel:        fmt.Errorf("run: %w", context.Canceled),
		CodeToolMissing:   fmt.Errorf("%w: pdftoppm", models.ErrToolNotFound),
		CodeExtraction:    &models.ToolError{Kind: models.ErrExtraction},
		CodeRasterization: &models.ToolError{Kind: models.ErrRasterization},
		CodeMalformed:     fmt.Errorf("x: %w", models.ErrMalformedNumber),
		CodeUnrecognized:  models.ErrUnrecognizedCarrier,
		CodeIO:            &os.PathError{Op: "open", Path: "a", Err: os.ErrNotExist},
		CodeUnknown:       errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Classify(err), err.Error())
	}
	assert.Equal(t, CodeUnknown, Classify(nil))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "json", "run-1")
	l.Info("hidden")
	l.Warn("shown", "file", "a.pdf")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "shown", ev["msg"])
	assert.Equal(t, "run-1", ev["run_id"])
	assert.Equal(t, "a.pdf", ev["file"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("Debug").String())
	assert.Equal(t, "INFO", ParseLevel("").String())
	assert.Equal(t, "ERROR", ParseLevel("error").String())
}
