package reports

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"staffdesk/internal/domain/staff"
)

// StatementPDF renders a staff member's ledger and lifecycle history. Sensitive
// fields are never printed.
func StatementPDF(rec staff.Record, loc staff.Location, events []staff.KeyedEvent, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Staff statement "+rec.IDNo, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Staff statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}
	line("Name", rec.FullName())
	line("ID No", rec.IDNo)
	line("Employee ID", rec.EmployeeID)
	line("Designation", rec.Designation)
	line("Status", string(rec.Status))
	line("Location", string(loc))
	line("Mobile", rec.MobileNo)
	line("Generated", generatedAt.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(4)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 9, title)
		pdf.Ln(9)
	}
	table := func(widths []float64, header []string, rows [][]string) {
		pdf.SetFont("Helvetica", "B", 9)
		for i, h := range header {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, row := range rows {
			for i, cell := range row {
				pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	section("Payments")
	if payments := staff.Compact(rec.Payments); len(payments) > 0 {
		var rows [][]string
		for _, p := range payments {
			rows = append(rows, []string{p.Date, p.ClientNameOrReference, p.Days, p.Amount, p.TypeOfPayment, p.Purpose, p.ReceiptNo})
		}
		table([]float64{24, 46, 14, 22, 22, 26, 26}, []string{"Date", "Client / Ref", "Days", "Amount", "Type", "Purpose", "Receipt"}, rows)
	} else {
		emptyNote(pdf, "No payments recorded.")
	}

	section("Work details")
	if work := staff.Compact(rec.WorkDetails); len(work) > 0 {
		var rows [][]string
		for _, w := range work {
			rows = append(rows, []string{w.ClientID, w.ClientNameOrReference, w.Location, w.FromDate, w.ToDate, w.Days, w.ServiceType})
		}
		table([]float64{20, 44, 30, 22, 22, 14, 28}, []string{"Client", "Client / Ref", "Location", "From", "To", "Days", "Service"}, rows)
	} else {
		emptyNote(pdf, "No work assignments recorded.")
	}

	section("Lifecycle")
	if len(events) > 0 {
		var rows [][]string
		for _, ev := range events {
			rows = append(rows, []string{ev.Timestamp, string(ev.Type), ev.ReasonType, ev.Actor.DisplayName, ev.Comment})
		}
		table([]float64{38, 20, 32, 30, 60}, []string{"When", "Type", "Reason", "By", "Comment"}, rows)
	} else {
		emptyNote(pdf, "No removals or returns.")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func emptyNote(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "I", 10)
	pdf.Cell(0, 7, text)
	pdf.Ln(9)
}
