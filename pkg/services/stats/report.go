package stats

import (
	"slices"
	"sort"

	"minprint/pkg/models"
)

// TotalKey groups numeric entries for totals.
type TotalKey struct {
	Carrier models.Carrier
	Field   string
}

// Report aggregates scan results over a batch.
// Totals only ever include recognized carriers.
type Report struct {
	Entries   map[models.Carrier][]models.StatEntry
	Totals    map[TotalKey]float64
	Counts    map[TotalKey]int
	Unmatched []string
	Invoices  []models.Invoice
	Files     int
}

func NewReport() *Report {
	return &Report{
		Entries: make(map[models.Carrier][]models.StatEntry),
		Totals:  make(map[TotalKey]float64),
		Counts:  make(map[TotalKey]int),
	}
}

// Add folds one scan result into the report.
func (r *Report) Add(res Result) {
	r.Files++
	r.Invoices = append(r.Invoices, invoiceFrom(res))
	if res.Carrier == models.Unknown {
		r.Unmatched = append(r.Unmatched, res.Path)
		return
	}
	r.Entries[res.Carrier] = append(r.Entries[res.Carrier], res.Entries...)
	for _, e := range res.Entries {
		if !e.Numeric {
			continue
		}
		k := TotalKey{Carrier: e.Carrier, Field: e.Field}
		r.Totals[k] += e.Value
		r.Counts[k]++
	}
}

// Carriers returns the recognized carriers present, sorted.
func (r *Report) Carriers() []models.Carrier {
	out := make([]models.Carrier, 0, len(r.Entries))
	for c := range r.Entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalKeys returns the keys of Totals in carrier, field order.
func (r *Report) TotalKeys() []TotalKey {
	keys := make([]TotalKey, 0, len(r.Totals))
	for k := range r.Totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Carrier != keys[j].Carrier {
			return keys[i].Carrier < keys[j].Carrier
		}
		return keys[i].Field < keys[j].Field
	})
	return keys
}

// PhoneTotal is the part of a QuarterTotal billed to one phone number.
type PhoneTotal struct {
	Phone    string
	Invoices int
	Amount   float64
}

// QuarterTotal is the amount billed to one user in one quarter, with the
// per-phone breakdown sorted by phone number.
type QuarterTotal struct {
	UserName string
	Year     int
	Quarter  int
	Phones   []PhoneTotal
	Invoices int
	Amount   float64
}

// QuarterTotals sums invoice amounts per user and quarter, and per phone
// within each. Invoices without a parsable bill period are left out.
// Rows are ordered by user, then quarter.
func (r *Report) QuarterTotals() []QuarterTotal {
	type key struct {
		name    string
		year    int
		quarter int
	}
	idx := make(map[key]int)
	var out []QuarterTotal
	for _, inv := range r.Invoices {
		if inv.Year == 0 {
			continue
		}
		k := key{inv.UserName, inv.Year, inv.Quarter}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, QuarterTotal{UserName: inv.UserName, Year: inv.Year, Quarter: inv.Quarter})
		}
		q := &out[i]
		q.Invoices++
		q.Amount += inv.Amount

		j := slices.IndexFunc(q.Phones, func(p PhoneTotal) bool { return p.Phone == inv.Phone })
		if j < 0 {
			j = len(q.Phones)
			q.Phones = append(q.Phones, PhoneTotal{Phone: inv.Phone})
		}
		q.Phones[j].Invoices++
		q.Phones[j].Amount += inv.Amount
	}
	for i := range out {
		sort.Slice(out[i].Phones, func(a, b int) bool { return out[i].Phones[a].Phone < out[i].Phones[b].Phone })
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Quarter < b.Quarter
	})
	return out
}

// SortedInvoices returns the invoice rows ordered by user, bill period and
// phone. Rows that tie keep their discovery order.
func (r *Report) SortedInvoices() []models.Invoice {
	out := slices.Clone(r.Invoices)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Quarter != b.Quarter {
			return a.Quarter < b.Quarter
		}
		return a.Phone < b.Phone
	})
	return out
}

func invoiceFrom(res Result) models.Invoice {
	inv := models.Invoice{Carrier: res.Carrier, SourcePath: res.Path}
	amountSet := false
	for _, e := range res.Entries {
		switch e.Field {
		case FieldAmount:
			if !amountSet {
				inv.Amount, amountSet = e.Value, true
			}
		case FieldName:
			inv.UserName = e.Text
		case FieldPhone:
			inv.Phone = e.Text
		case FieldPeriod:
			inv.BillPeriod = e.Text
			inv.Year, inv.Quarter, _ = models.YearQuarter(e.Text)
		}
	}
	return inv
}
