package compose

import (
	"math"

	"minprint/pkg/models"
)

const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
	mmPerInch  = 25.4
)

// Page is a portrait paper size in pixels at a given resolution
type Page struct {
	Width  int
	Height int
}

// A4 returns the A4 page size at dpi.
func A4(dpi int) Page {
	return Page{
		Width:  int(math.Round(a4WidthMM / mmPerInch * float64(dpi))),
		Height: int(math.Round(a4HeightMM / mmPerInch * float64(dpi))),
	}
}

// MMToPixels converts a length in millimetres at dpi.
func MMToPixels(mm float64, dpi int) int {
	return int(math.Round(mm / mmPerInch * float64(dpi)))
}

// Slots of a sheet: the top and bottom halves of the page.
const (
	Top = iota
	Bottom
	slots
)

// Placement is where a scaled image lands on the page
type Placement struct {
	X, Y          int
	Width, Height int
	Scale         float64
}

// PrintSheet is one output A4 page holding up to two images.
// Images[Bottom] is nil on the trailing sheet of an odd batch.
type PrintSheet struct {
	Page   Page
	Images [slots]*models.PageImage
	Layout [slots]Placement
}

// Populated reports how many slots hold an image.
func (s PrintSheet) Populated() int {
	n := 0
	for _, im := range s.Images {
		if im != nil {
			n++
		}
	}
	return n
}

// Pair groups images two at a time in input order. Each image lands in
// exactly one sheet.
func Pair(images []models.PageImage) []PrintSheet {
	sheets := make([]PrintSheet, 0, (len(images)+1)/2)
	for i := 0; i < len(images); i += 2 {
		var s PrintSheet
		s.Images[Top] = &images[i]
		if i+1 < len(images) {
			s.Images[Bottom] = &images[i+1]
		}
		sheets = append(sheets, s)
	}
	return sheets
}

// Layout fits a w x h image into one half of page, inset by margin pixels on
// every side, preserving aspect ratio and centering it in the inset area.
// The scale is min(halfWidth/w, halfHeight/h), so images are enlarged as
// well as shrunk.
func Layout(page Page, margin, slot, w, h int) Placement {
	if w <= 0 || h <= 0 {
		return Placement{}
	}
	halfH := float64(page.Height) / 2
	boxX := float64(margin)
	boxY := float64(slot)*halfH + float64(margin)
	boxW := math.Max(float64(page.Width-2*margin), 1)
	boxH := math.Max(halfH-2*float64(margin), 1)

	scale := math.Min(boxW/float64(w), boxH/float64(h))
	sw := math.Max(math.Round(float64(w)*scale), 1)
	sh := math.Max(math.Round(float64(h)*scale), 1)
	return Placement{
		X:      int(math.Round(boxX + (boxW-sw)/2)),
		Y:      int(math.Round(boxY + (boxH-sh)/2)),
		Width:  int(sw),
		Height: int(sh),
		Scale:  scale,
	}
}
