package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sort"
	"strconv"
	"strings"

	"minprint/pkg/models"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/disintegration/imaging"
)

// maxSide keeps uploads under the service's image dimension limit
const maxSide = 4200

type recognizer interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, image io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// Service handles OCR operations
type Service struct {
	client   recognizer
	language computervision.OcrLanguages
}

// NewService creates a new OCR service for Simplified Chinese invoices
func NewService(endpoint, apiKey string) *Service {
	client := computervision.New(endpoint)
	auth := autorest.NewCognitiveServicesAuthorizer(apiKey)
	client.Authorizer = auth

	return &Service{
		client:   &client,
		language: computervision.OcrLanguagesZhHans,
	}
}

// EnhanceImageForOCR prepares a rendered page for recognition
func EnhanceImageForOCR(src image.Image) image.Image {
	// grayscale, then push contrast and sharpen the strokes
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustBrightness(img, 10)
	img = imaging.AdjustGamma(img, 1.2)

	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	return img
}

// ExtractPages recognizes every page image and joins the page texts with
// a form feed, matching the layout of pdftotext output.
func (s *Service) ExtractPages(ctx context.Context, pages []models.PageImage) (string, error) {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		lines, err := s.ExtractText(ctx, p)
		if err != nil {
			return "", &models.ToolError{Tool: "ocr", Path: p.File, Kind: models.ErrExtraction, Err: err}
		}
		texts = append(texts, joinLines(lines))
	}
	return strings.Join(texts, "\f"), nil
}

// ExtractText performs OCR on one page and returns the text lines in reading order
func (s *Service) ExtractText(ctx context.Context, page models.PageImage) ([]models.TextLine, error) {
	src, err := imaging.Decode(bytes.NewReader(page.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page %d: %w", page.Index+1, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, EnhanceImageForOCR(src), imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page.Index+1, err)
	}

	result, err := s.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(&buf), s.language)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	return extractTextFromOCRResult(result, wordSeparator(s.language)), nil
}

// extractTextFromOCRResult flattens regions into lines sorted top to bottom
func extractTextFromOCRResult(result computervision.OcrResult, sep string) []models.TextLine {
	var textLines []models.TextLine
	if result.Regions == nil {
		return nil
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			var boundingBox []int
			if line.BoundingBox != nil {
				for _, part := range strings.Split(*line.BoundingBox, ",") {
					val, _ := strconv.Atoi(strings.TrimSpace(part))
					boundingBox = append(boundingBox, val)
				}
			}
			if len(boundingBox) < 4 || line.Words == nil {
				continue
			}

			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			textLines = append(textLines, models.TextLine{
				Text:   strings.Join(words, sep),
				X:      boundingBox[0],
				Y:      boundingBox[1],
				Width:  boundingBox[2],
				Height: boundingBox[3],
			})
		}
	}
	sort.SliceStable(textLines, func(i, j int) bool {
		if textLines[i].Y != textLines[j].Y {
			return textLines[i].Y < textLines[j].Y
		}
		return textLines[i].X < textLines[j].X
	})
	return textLines
}

func joinLines(lines []models.TextLine) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CJK recognizers return one word per character
func wordSeparator(lang computervision.OcrLanguages) string {
	switch lang {
	case computervision.OcrLanguagesZhHans, computervision.OcrLanguagesZhHant, computervision.OcrLanguagesJa:
		return ""
	}
	return " "
}
