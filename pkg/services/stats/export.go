package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"minprint/pkg/models"
)

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// WriteCSV writes one row per entry: carrier, field, value, total.
// String fields leave total empty. Unmatched documents follow as
// "unknown,unmatched,<path>," rows.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"carrier", "field", "value", "total"}); err != nil {
		return err
	}
	for _, c := range r.Carriers() {
		for _, e := range r.Entries[c] {
			row := []string{string(c), e.Field, e.Text, ""}
			if e.Numeric {
				row[2] = formatAmount(e.Value)
				row[3] = formatAmount(r.Totals[TotalKey{Carrier: c, Field: e.Field}])
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	for _, p := range r.Unmatched {
		if err := cw.Write([]string{string(models.Unknown), "unmatched", p, ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInvoicesCSV writes the per-invoice detail rows.
func WriteInvoicesCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "quarter", "phone", "period", "amount", "carrier", "file"}); err != nil {
		return err
	}
	for _, inv := range r.SortedInvoices() {
		q := ""
		if inv.Year > 0 {
			q = fmt.Sprintf("%dQ%d", inv.Year, inv.Quarter)
		}
		row := []string{inv.UserName, q, inv.Phone, inv.BillPeriod, formatAmount(inv.Amount), string(inv.Carrier), inv.SourcePath}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText renders a human readable summary.
func WriteText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "files scanned: %d, unmatched: %d\n\n", r.Files, len(r.Unmatched))

	fmt.Fprintln(tw, "CARRIER\tFIELD\tCOUNT\tTOTAL")
	for _, k := range r.TotalKeys() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", k.Carrier, k.Field, r.Counts[k], formatAmount(r.Totals[k]))
	}

	if qs := r.QuarterTotals(); len(qs) > 0 {
		fmt.Fprintln(tw, "\nNAME\tQUARTER\tPHONE\tINVOICES\tAMOUNT")
		for _, q := range qs {
			for _, p := range q.Phones {
				fmt.Fprintf(tw, "%s\t%dQ%d\t%s\t%d\t%s\n", q.UserName, q.Year, q.Quarter, p.Phone, p.Invoices, formatAmount(p.Amount))
			}
		}
		fmt.Fprintln(tw, "\nNAME\tQUARTER\tPHONES\tINVOICES\tAMOUNT")
		for _, q := range qs {
			fmt.Fprintf(tw, "%s\t%dQ%d\t%d\t%d\t%s\n", q.UserName, q.Year, q.Quarter, len(q.Phones), q.Invoices, formatAmount(q.Amount))
		}
	}

	if len(r.Unmatched) > 0 {
		fmt.Fprintln(tw, "\nUNMATCHED")
		for _, p := range r.Unmatched {
			fmt.Fprintln(tw, p)
		}
	}
	return tw.Flush()
}
