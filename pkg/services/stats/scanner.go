package stats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"minprint/pkg/models"
)

// Scanner classifies invoice text by carrier and extracts field values
type Scanner struct {
	carriers []carrierMatcher
	fields   []compiledField
}

type carrierMatcher struct {
	carrier  models.Carrier
	keywords []string
	fields   []compiledField
}

// Result is the outcome of scanning one document.
type Result struct {
	Path     string
	Carrier  models.Carrier
	Entries  []models.StatEntry
	Warnings []error
}

// NewScanner compiles the rules.
func NewScanner(rules Rules) (*Scanner, error) {
	shared, err := compileFields(rules.Fields)
	if err != nil {
		return nil, err
	}
	s := &Scanner{fields: shared}
	for _, c := range rules.Carriers {
		if c.Carrier == "" || c.Carrier == models.Unknown {
			return nil, fmt.Errorf("invalid carrier name %q", c.Carrier)
		}
		m := carrierMatcher{carrier: c.Carrier, fields: shared}
		for _, k := range c.Keywords {
			if k = compact(k); k != "" {
				m.keywords = append(m.keywords, k)
			}
		}
		if len(m.keywords) == 0 {
			return nil, fmt.Errorf("carrier %s has no keywords", c.Carrier)
		}
		if len(c.Fields) > 0 {
			if m.fields, err = compileFields(c.Fields); err != nil {
				return nil, fmt.Errorf("carrier %s: %w", c.Carrier, err)
			}
		}
		s.carriers = append(s.carriers, m)
	}
	return s, nil
}

// Classify returns the first carrier whose keyword occurs in text.
// Whitespace is ignored and Latin letters are case-folded, since layout
// extraction often splits CJK runs with spaces.
func (s *Scanner) Classify(text string) models.Carrier {
	m := s.match(compact(text))
	if m == nil {
		return models.Unknown
	}
	return m.carrier
}

func (s *Scanner) match(compacted string) *carrierMatcher {
	for i := range s.carriers {
		for _, k := range s.carriers[i].keywords {
			if strings.Contains(compacted, k) {
				return &s.carriers[i]
			}
		}
	}
	return nil
}

// Scan classifies text and applies the field rules of the matched carrier.
// Unrecognized documents still get the shared rules applied so the detail
// row is complete, and carry an ErrUnrecognizedCarrier warning.
func (s *Scanner) Scan(path, text string) Result {
	res := Result{Path: path, Carrier: models.Unknown}
	fields := s.fields
	if m := s.match(compact(text)); m != nil {
		res.Carrier = m.carrier
		fields = m.fields
	} else {
		res.Warnings = append(res.Warnings, fmt.Errorf("%s: %w", path, models.ErrUnrecognizedCarrier))
	}

	for _, f := range fields {
		switch f.Kind {
		case KindAmount:
			for _, sm := range f.re.FindAllStringSubmatch(text, -1) {
				v, err := ParseAmount(sm[1])
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Errorf("%s: field %s: %w", path, f.Name, err))
					continue
				}
				res.Entries = append(res.Entries, models.StatEntry{
					Carrier: res.Carrier,
					Field:   f.Name,
					Value:   v,
					Text:    sm[1],
					Numeric: true,
					Source:  path,
				})
			}
		case KindString:
			sm := f.re.FindStringSubmatch(text)
			if sm == nil {
				res.Warnings = append(res.Warnings, fmt.Errorf("%s: field %s not found", path, f.Name))
				continue
			}
			v := sm[1]
			if r := []rune(v); f.KeepLast > 0 && len(r) > f.KeepLast {
				res.Warnings = append(res.Warnings, fmt.Errorf("%s: field %s value %q too long, keeping last %d characters", path, f.Name, v, f.KeepLast))
				v = string(r[len(r)-f.KeepLast:])
			}
			res.Entries = append(res.Entries, models.StatEntry{
				Carrier: res.Carrier,
				Field:   f.Name,
				Text:    v,
				Source:  path,
			})
		}
	}
	return res
}

var (
	amountPlain   = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?$`)
	amountGrouped = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	currencyWords = []string{"RMB", "CNY", "¥", "￥", "$", "元"}
)

// ParseAmount parses a money value such as "¥1,234.56", "1234.56元" or
// full-width "１，２３４．５６". Anything else reports ErrMalformedNumber.
func ParseAmount(s string) (float64, error) {
	n := strings.Map(func(r rune) rune {
		switch {
		case r >= '０' && r <= '９':
			return '0' + (r - '０')
		case r == '，':
			return ','
		case r == '．':
			return '.'
		case r == '－' || r == '−':
			return '-'
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
	n = strings.TrimRight(n, "。,.;；:：)）")
	for changed := true; changed; {
		changed = false
		for _, w := range currencyWords {
			if strings.HasPrefix(n, w) {
				n, changed = n[len(w):], true
			}
			if strings.HasSuffix(n, w) {
				n, changed = n[:len(n)-len(w)], true
			}
		}
	}
	if strings.HasPrefix(n, "-¥") || strings.HasPrefix(n, "-￥") {
		n = "-" + strings.TrimLeft(n[1:], "¥￥")
	}
	switch {
	case amountPlain.MatchString(n):
	case amountGrouped.MatchString(n):
		n = strings.ReplaceAll(n, ",", "")
	default:
		return 0, fmt.Errorf("%w: %q", models.ErrMalformedNumber, s)
	}
	v, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", models.ErrMalformedNumber, s)
	}
	return v, nil
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
