package ocr

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"testing"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minprint/pkg/models"
)

type fakeRecognizer struct {
	results []computervision.OcrResult
	err     error
	calls   int
	lang    computervision.OcrLanguages
}

func (f *fakeRecognizer) RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, image io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error) {
	f.lang = language
	if _, err := io.ReadAll(image); err != nil {
		return computervision.OcrResult{}, err
	}
	if f.err != nil {
		return computervision.OcrResult{}, f.err
	}
	r := f.results[f.calls]
	f.calls++
	return r, nil
}

func str(s string) *string { return &s }

func line(box string, words ...string) computervision.OcrLine {
	ws := make([]computervision.OcrWord, 0, len(words))
	for _, w := range words {
		ws = append(ws, computervision.OcrWord{Text: str(w)})
	}
	return computervision.OcrLine{BoundingBox: str(box), Words: &ws}
}

func result(lines ...computervision.OcrLine) computervision.OcrResult {
	regions := []computervision.OcrRegion{{Lines: &lines}}
	return computervision.OcrResult{Regions: &regions}
}

func page(t *testing.T, file string, index int) models.PageImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(20, 30, color.White), imaging.PNG))
	return models.PageImage{File: file, Index: index, Data: buf.Bytes(), Width: 20, Height: 30}
}

func TestExtractPagesOrdersLinesAndJoinsPages(t *testing.T) {
	fake := &fakeRecognizer{results: []computervision.OcrResult{
		result(
			line("10,200,50,20", "金", "额", ":", "1", "2", ".", "0", "0"),
			line("10,20,50,20", "中", "国", "移", "动"),
			line("bad"),
		),
		result(line("0,0,10,10", "第", "二", "页")),
	}}
	s := &Service{client: fake, language: computervision.OcrLanguagesZhHans}

	text, err := s.ExtractPages(context.Background(), []models.PageImage{page(t, "a.pdf", 0), page(t, "a.pdf", 1)})
	require.NoError(t, err)
	assert.Equal(t, "中国移动\n金额:12.00\n\f第二页\n", text)
	assert.Equal(t, computervision.OcrLanguagesZhHans, fake.lang)
}

func TestExtractPagesError(t *testing.T) {
	s := &Service{client: &fakeRecognizer{err: errors.New("quota exceeded")}, language: computervision.OcrLanguagesZhHans}
	_, err := s.ExtractPages(context.Background(), []models.PageImage{page(t, "a.pdf", 0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestEnhanceImageForOCRShrinksLargePages(t *testing.T) {
	img := EnhanceImageForOCR(imaging.New(8400, 100, color.White))
	assert.Equal(t, maxSide, img.Bounds().Dx())

	small := EnhanceImageForOCR(imaging.New(100, 50, color.White))
	assert.Equal(t, 100, small.Bounds().Dx())
}

func TestWordSeparator(t *testing.T) {
	assert.Equal(t, "", wordSeparator(computervision.OcrLanguagesZhHans))
	assert.Equal(t, " ", wordSeparator(computervision.OcrLanguagesEn))
}
