package models

import (
	"gorm.io/gorm"
)

// Carrier identifies the telecom operator that issued an invoice
type Carrier string

const (
	ChinaMobile  Carrier = "china_mobile"
	ChinaUnicom  Carrier = "china_unicom"
	ChinaTelecom Carrier = "china_telecom"
	Unknown      Carrier = "unknown"
)

// InvoiceFile is one input PDF, populated progressively while the pipeline runs
type InvoiceFile struct {
	Path    string
	Carrier Carrier
	Text    string
	Pages   []PageImage
}

// StatEntry is one field value found in the text of an invoice
type StatEntry struct {
	Carrier Carrier
	Field   string
	Value   float64
	Text    string
	Numeric bool
	Source  string
}

// PageImage is a rasterized page. File points back at the owning invoice path.
type PageImage struct {
	File   string
	Index  int
	Data   []byte
	Width  int
	Height int
}

// Invoice is the per-invoice detail row kept in the statistics report and
// optionally persisted
type Invoice struct {
	gorm.Model
	Carrier    Carrier `gorm:"index"`
	UserName   string  `gorm:"index"`
	Phone      string
	BillPeriod string
	Year       int
	Quarter    int
	Amount     float64
	SourcePath string
	RunID      string `gorm:"index"`
}

// YearQuarter returns the year and quarter of a yyyymm bill period.
func YearQuarter(period string) (int, int, bool) {
	if len(period) != 6 {
		return 0, 0, false
	}
	year, month := 0, 0
	for i, r := range period {
		if r < '0' || r > '9' {
			return 0, 0, false
		}
		if i < 4 {
			year = year*10 + int(r-'0')
		} else {
			month = month*10 + int(r-'0')
		}
	}
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, (month-1)/3 + 1, true
}

// TextLine is a line of OCR text with its bounding box on the page image
type TextLine struct {
	Text   string
	X      int
	Y      int
	Width  int
	Height int
}
