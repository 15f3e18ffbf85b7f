package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/gflink/internal/rules"
)

const creator = "gflink"

func newDocument(title string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.SetAuthor(creator, false)
	pdf.SetCreator(creator, false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	addPDFTitle(pdf, title)
	return pdf
}

// SaveAcceptancePDF renders a telemetry acceptance report.
func SaveAcceptancePDF(rep rules.AcceptanceReport, out string) error {
	pdf := newDocument("Telemetry Acceptance Report")
	addSummarySection(pdf, rep)
	addGateMatrixSection(pdf, rep.GateMatrix)
	addFindingsSection(pdf, rep.Findings)

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

func addSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

type labeled struct {
	label string
	value string
}

func addKeyValues(pdf *gofpdf.Fpdf, items []labeled) {
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep rules.AcceptanceReport) {
	addSectionTitle(pdf, "Summary")
	addKeyValues(pdf, []labeled{
		{"Frames", strconv.Itoa(rep.Summary.Frames)},
		{"Rejected Frames", strconv.Itoa(rep.Summary.Rejected)},
		{"Total Findings", strconv.Itoa(rep.Summary.Total)},
		{"Errors", strconv.Itoa(rep.Summary.Errors)},
		{"Warnings", strconv.Itoa(rep.Summary.Warnings)},
		{"Overall", passLabel(rep.Summary.Pass)},
	})
}

func addTableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func addGateMatrixSection(pdf *gofpdf.Fpdf, rows []map[string]any) {
	addSectionTitle(pdf, "Gate Matrix")
	widths := []float64{60, 30, 30, 30}
	addTableHeader(pdf, []string{"Rule", "Errors", "Warnings", "Status"}, widths)
	for _, row := range rows {
		renderTableRow(pdf, widths, []string{
			cellString(row["ruleId"]),
			cellString(row["errors"]),
			cellString(row["warnings"]),
			cellString(row["status"]),
		}, 5)
	}
	pdf.Ln(4)
}

// cellString formats a gate matrix value. Values read back from JSON are
// float64.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []rules.Diagnostic) {
	addSectionTitle(pdf, "Findings")
	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}
	for i, d := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		if d.ErrorType != 0 {
			header += " " + d.ErrorType.String()
		}
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, pdfText(msg), "", "L", false)
		}
		if meta := findingMetadata(d); meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}
		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Refs: "+strings.Join(d.Refs, ", "), "", "L", false)
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
	if _, pageH := pdf.GetPageSize(); yStart+rowHeight > pageH-20 {
		pdf.AddPage()
		xStart, yStart = pdf.GetX(), pdf.GetY()
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

// pdfText replaces the degree sign, which the core fonts only have in
// cp1252.
func pdfText(s string) string {
	return strings.ReplaceAll(s, "°", " deg")
}

func findingMetadata(d rules.Diagnostic) string {
	parts := make([]string, 0, 6)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.File != "" {
		parts = append(parts, d.File)
	}
	if d.Board != 0 {
		parts = append(parts, fmt.Sprintf("Board %d", d.Board))
	}
	if d.FrameIndex != 0 {
		parts = append(parts, fmt.Sprintf("Frame %d", d.FrameIndex))
	}
	if d.Offset != "" {
		parts = append(parts, "Offset "+d.Offset)
	}
	if d.DateTime != nil {
		parts = append(parts, "Board time "+time.Unix(*d.DateTime, 0).UTC().Format(time.RFC3339))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
