package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/pkg/services/stats"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	require.NoError(t, Validate(c))
	assert.True(t, c.IsRecursive())
	assert.True(t, c.WantStats())
	assert.True(t, c.WantPrint())
}

func TestLoadJSON(t *testing.T) {
	raw := []byte(`{
		"output_dir": "out",
		"mode": "print",
		"recursive": false,
		"dpi": 300,
		"rules": {
			"carriers": [{"carrier": "china_broadnet", "keywords": ["中国广电"]}],
			"fields": [{"name": "amount", "kind": "amount", "pattern": "合计\\s*(\\S+)"}]
		}
	}`)
	c, err := LoadJSON("", raw)
	require.NoError(t, err)

	merged := Merge(Defaults(), c)
	require.NoError(t, Validate(merged))
	assert.Equal(t, "out", merged.OutputDir)
	assert.False(t, merged.IsRecursive())
	assert.False(t, merged.WantStats())
	assert.Equal(t, 300, merged.DPI)
	assert.Equal(t, 90, merged.JPEGQuality)
	require.Len(t, merged.ScannerRules().Carriers, 1)
	assert.EqualValues(t, "china_broadnet", merged.ScannerRules().Carriers[0].Carrier)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dpi": 150}`), 0o644))
	c, err := LoadJSON(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 150, c.DPI)
}

func TestLoadJSONUnknownField(t *testing.T) {
	_, err := LoadJSON("", []byte(`{"colour": "red"}`))
	assert.Error(t, err)
	_, err = LoadJSON("", nil)
	assert.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	over, err := EnvOverlay([]string{
		"MINPRINT_INPUTS=a.pdf, invoices/",
		"MINPRINT_DPI=300",
		"MINPRINT_MARGIN_MM=7.5",
		"MINPRINT_RECURSIVE=false",
		"MINPRINT_MODE=stats",
		"DATABASE_URL=postgres://localhost/minprint",
		"AZURE_CV_ENDPOINT=https://example.cognitiveservices.azure.com/",
		"AZURE_CV_KEY=secret",
		"PORT=9090",
		"HOME=/root",
		"MINPRINT_LOG_LEVEL=",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "invoices/"}, over.Inputs)
	assert.Equal(t, 300, over.DPI)
	assert.Equal(t, 7.5, over.Margin())
	require.NotNil(t, over.Recursive)
	assert.False(t, *over.Recursive)
	assert.Equal(t, "stats", over.Mode)
	assert.Equal(t, "postgres://localhost/minprint", over.Database.URL)
	assert.True(t, over.OCR.Enabled())
	assert.Equal(t, ":9090", over.Server.Addr)
	assert.Empty(t, over.Logging.Level)
}

func TestEnvOverlayBadNumber(t *testing.T) {
	_, err := EnvOverlay([]string{"MINPRINT_DPI=high"})
	assert.Error(t, err)
}

func TestMergeZeroDoesNotOverride(t *testing.T) {
	base := Defaults()
	out := Merge(base, Config{Mode: " ", DPI: 0})
	assert.Equal(t, base, out)
}

func TestValidateCollectsErrors(t *testing.T) {
	c := Defaults()
	c.Mode = "fax"
	c.DPI = 10
	c.Extractor = "ocr"
	c.Outputs.PrintPDF = "../a4.pdf"
	c.Rules = &stats.Rules{Fields: []stats.FieldRule{{Name: "x", Kind: stats.KindAmount, Pattern: "("}}}
	err := Validate(c)
	require.Error(t, err)
	for _, want := range []string{"mode", "dpi", "extractor", "../a4.pdf", "rules"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MINPRINT_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("MINPRINT_TEST_DOTENV", "from-env")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("MINPRINT_TEST_DOTENV"))
}

func TestZeroMarginOverridesDefault(t *testing.T) {
	assert.Equal(t, DefaultMarginMM, Defaults().Margin())

	c, err := LoadJSON("", []byte(`{"margin_mm": 0}`))
	require.NoError(t, err)
	merged := Merge(Defaults(), c)
	require.NoError(t, Validate(merged))
	assert.Equal(t, 0.0, merged.Margin())

	over, err := EnvOverlay([]string{"MINPRINT_MARGIN_MM=0"})
	require.NoError(t, err)
	merged = Merge(Merge(Defaults(), Config{MarginMM: ptr(8.0)}), over)
	assert.Equal(t, 0.0, merged.Margin())

	// an unset margin leaves the lower layer alone
	merged = Merge(Merge(Defaults(), Config{MarginMM: ptr(8.0)}), Config{})
	assert.Equal(t, 8.0, merged.Margin())
}

func TestValidateMarginRange(t *testing.T) {
	c := Defaults()
	c.MarginMM = ptr(-1.0)
	assert.ErrorContains(t, Validate(c), "margin_mm")
}

func ptr[T any](v T) *T { return &v }
