package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/vnmchuo/datacap/pkg/metrics"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CSVFilename is the attachment name for a client's usage export.
func CSVFilename(clientName string) string {
	return unsafeFilename.ReplaceAllString(clientName, "_") + "_usage_report.csv"
}

// PDFFilename is the attachment name for a client's point-in-time report.
func PDFFilename(clientName string) string {
	return unsafeFilename.ReplaceAllString(clientName, "_") + "_usage_report.pdf"
}

// WriteCSV writes the client's full usage history as Date, Usage (GB) rows.
func (a *Assembler) WriteCSV(ctx context.Context, w io.Writer, clientID int64) error {
	ctx, span := a.tracer.Start(ctx, "report.csv")
	defer span.End()
	metrics.ReportRequests.WithLabelValues("csv").Inc()

	if _, err := a.store.GetClient(ctx, clientID); err != nil {
		return err
	}
	points, err := a.agg.History(ctx, clientID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Usage (GB)"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, p := range points {
		row := []string{p.Date.Format("2006-01-02"), strconv.FormatFloat(p.UsageGB, 'f', -1, 64)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePDF renders a point-in-time report as a one page table.
func (a *Assembler) WritePDF(ctx context.Context, w io.Writer, clientID int64, numCycles int, mode Mode) error {
	r, err := a.PointInTimeReport(ctx, clientID, numCycles, mode)
	if err != nil {
		return err
	}
	_, span := a.tracer.Start(ctx, "report.pdf")
	defer span.End()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.ClientName+" usage report", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, r.ClientName+" - usage report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Monthly cap: %.2f GB", r.CapGB), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(110, 8, "Billing cycle", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 8, "Usage (GB)", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, c := range r.Cycles {
		pdf.CellFormat(110, 8, c.CycleLabel, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", c.TotalUsage), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(110, 8, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", r.TotalUsage), "1", 1, "R", false, 0, "")
	pdf.CellFormat(110, 8, "Average per cycle", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 8, fmt.Sprintf("%.2f", r.AverageUsage), "1", 1, "R", false, 0, "")

	if r.Recommendation != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 11)
		pdf.MultiCell(0, 6, r.Recommendation, "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
