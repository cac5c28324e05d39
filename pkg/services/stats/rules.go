package stats

import (
	"fmt"
	"regexp"

	"minprint/pkg/models"
)

// FieldKind tells the scanner how to interpret a captured value
type FieldKind string

const (
	KindAmount FieldKind = "amount"
	KindString FieldKind = "string"
)

// Well-known field names used for the per-invoice detail rows
const (
	FieldAmount = "amount"
	FieldName   = "name"
	FieldPhone  = "phone"
	FieldPeriod = "period"
)

// FieldRule extracts one field. Pattern must have exactly one capture group.
// Amount rules yield one entry per match; string rules only use the first match.
type FieldRule struct {
	Name    string    `json:"name"`
	Pattern string    `json:"pattern"`
	Kind    FieldKind `json:"kind"`
	// KeepLast truncates string values longer than KeepLast runes to their
	// last KeepLast runes. Zero keeps the value as is.
	KeepLast int `json:"keep_last,omitempty"`
}

// CarrierRule classifies a document by keyword. Fields, when set, replace
// the shared field rules for this carrier.
type CarrierRule struct {
	Carrier  models.Carrier `json:"carrier"`
	Keywords []string       `json:"keywords"`
	Fields   []FieldRule    `json:"fields,omitempty"`
}

// Rules is the complete, data-driven scanner configuration.
// Carriers are tried in order; the first with a matching keyword wins.
type Rules struct {
	Carriers []CarrierRule `json:"carriers"`
	Fields   []FieldRule   `json:"fields"`
}

// amountPattern follows a 金额 or 小写 label, an optional "(元)" unit and any
// separator, and captures an optionally currency-prefixed number. Spaces
// inside the capture are dropped by ParseAmount.
const amountPattern = `(?:金额|小写)(?:[（(]元[)）])?[^\S\n]*[:：)）]*[^\S\n]*((?:RMB|CNY|[¥￥$])?[^\S\n]*[-+]?[\d,，．.０-９]+元?)`

// DefaultRules returns the rules for China Mobile, Unicom and Telecom invoices.
func DefaultRules() Rules {
	return Rules{
		Carriers: []CarrierRule{
			{Carrier: models.ChinaMobile, Keywords: []string{"中国移动", "China Mobile"}},
			{Carrier: models.ChinaUnicom, Keywords: []string{"中国联通", "联通", "China Unicom"}},
			{Carrier: models.ChinaTelecom, Keywords: []string{"中国电信", "电信", "China Telecom"}},
		},
		Fields: []FieldRule{
			{Name: FieldAmount, Kind: KindAmount, Pattern: amountPattern},
			{Name: FieldName, Kind: KindString, Pattern: `名\s*称\W\s?(\p{Han}{2,})\s`, KeepLast: 3},
			{Name: FieldPhone, Kind: KindString, Pattern: `号码\W\s?(\d{11})`},
			{Name: FieldPeriod, Kind: KindString, Pattern: `[账帐]期\W\s?(\d{6})`},
		},
	}
}

type compiledField struct {
	FieldRule
	re *regexp.Regexp
}

func compileFields(rules []FieldRule) ([]compiledField, error) {
	out := make([]compiledField, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("field rule without name")
		}
		if r.Kind != KindAmount && r.Kind != KindString {
			return nil, fmt.Errorf("field %s: unknown kind %q", r.Name, r.Kind)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", r.Name, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("field %s: pattern needs exactly one capture group, has %d", r.Name, re.NumSubexp())
		}
		out = append(out, compiledField{FieldRule: r, re: re})
	}
	return out, nil
}

// Validate compiles every pattern without building a scanner.
func (r Rules) Validate() error {
	_, err := NewScanner(r)
	return err
}
