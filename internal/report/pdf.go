package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/elpisgate/internal/elpis"
)

// SavePDF renders the decode report into a PDF document in the requested
// language.
func SavePDF(rep DecodeReport, out string, lang Language) error {
	tr := NewTranslator(lang)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(tr.T("report.title"), true)
	pdf.SetAuthor("elpisctl", false)
	pdf.SetCreator("elpisctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, tr.T("report.title"))
	addSummarySection(pdf, tr, rep)
	addTallySection(pdf, tr, rep.Tallies)
	addDiagnosticsSection(pdf, tr, rep.Diagnostics)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, tr Translator, rep DecodeReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.summary"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: tr.T("report.source"), value: emptyFallback(rep.Source, "-")},
		{label: tr.T("report.generated"), value: rep.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
		{label: tr.T("report.schema_entries"), value: strconv.Itoa(rep.SchemaCount)},
		{label: tr.T("report.messages"), value: strconv.Itoa(rep.Summary.Messages)},
		{label: tr.T("report.known"), value: strconv.Itoa(rep.Summary.Known)},
		{label: tr.T("report.unknown"), value: strconv.Itoa(rep.Summary.Unknown)},
		{label: tr.T("report.warnings"), value: strconv.Itoa(rep.Summary.Warnings)},
		{label: tr.T("report.errors"), value: strconv.Itoa(rep.Summary.Errors)},
		{label: tr.T("report.overall"), value: passLabel(tr, rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if line := strings.TrimSpace(rep.InfoLine); line != "" {
		pdf.CellFormat(50, 6, tr.T("report.info_line"), "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, line, "", "L", false)
	}
	pdf.Ln(4)
}

func addTallySection(pdf *gofpdf.Fpdf, tr Translator, rows []MessageTally) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.tally"))
	pdf.Ln(9)

	headers := []string{
		tr.T("report.col.id"),
		tr.T("report.col.name"),
		tr.T("report.col.count"),
		tr.T("report.col.bytes"),
		tr.T("report.col.signals"),
	}
	widths := []float64{30, 76, 24, 30, 30}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, row := range rows {
		values := []string{
			fmt.Sprintf("0x%X", row.ID),
			emptyFallback(row.Name, "-"),
			strconv.Itoa(row.Count),
			strconv.Itoa(row.PayloadBytes),
			strconv.Itoa(row.Signals),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addDiagnosticsSection(pdf *gofpdf.Fpdf, tr Translator, diags []elpis.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr.T("report.diagnostics"))
	pdf.Ln(9)

	if len(diags) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr.T("report.none"), "", "L", false)
		return
	}

	for i, d := range diags {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s", i+1, severityLabel(tr, d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		meta := diagnosticMetadata(tr, d)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(tr Translator, pass bool) string {
	if pass {
		return tr.T("report.pass")
	}
	return tr.T("report.fail")
}

func severityLabel(tr Translator, sev string) string {
	switch sev {
	case elpis.SeverityWarning:
		return tr.T("report.severity.warning")
	case elpis.SeverityError:
		return tr.T("report.severity.error")
	default:
		if s := strings.TrimSpace(sev); s != "" {
			return s
		}
		return "-"
	}
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func diagnosticMetadata(tr Translator, d elpis.Diagnostic) string {
	parts := make([]string, 0, 3)
	parts = append(parts, tr.Format("report.meta.message_id", d.MessageID))
	if d.Signal != "" {
		parts = append(parts, tr.Format("report.meta.signal", d.Signal))
	}
	parts = append(parts, tr.Format("report.meta.offset", d.Offset))
	return strings.Join(parts, " · ")
}
