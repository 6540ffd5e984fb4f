package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/xuri/excelize/v2"

	"ForceView/internal/filter"
	"ForceView/internal/table"
)

func headers(v table.View) []string {
	out := make([]string, 0, len(v.Columns))
	for _, c := range v.Columns {
		out = append(out, c.Label)
	}
	return out
}

func subtitle(v table.View) string {
	parts := []string{fmt.Sprintf("Page %d of %d", v.State.Page, max(v.State.TotalPages, 1))}
	if v.State.SubcaseID != 0 {
		parts = append(parts, "Subcase "+strconv.Itoa(v.State.SubcaseID))
	}
	if v.State.Filtered() {
		parts = append(parts, "Filter: "+v.State.FilterText())
	}
	return strings.Join(parts, "  |  ")
}

// XLSX writes the rows of v to a single-sheet workbook. Numeric cells are
// stored as numbers.
func XLSX(w io.Writer, v table.View) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := v.Title
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]any, 0, len(v.Columns))
	for _, h := range headers(v) {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil && len(header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}

	for i, row := range v.Rows {
		values := make([]any, 0, len(row.Cells))
		for _, c := range row.Cells {
			if n, err := strconv.ParseFloat(c.Text, 64); err == nil {
				values = append(values, n)
				continue
			}
			values = append(values, c.Text)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// PDF writes v as a landscape A4 table.
func PDF(w io.Writer, v table.View) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(v.Title, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, v.Title)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, subtitle(v))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", time.Now().Format("2006-01-02 15:04")))
	pdf.Ln(9)

	cols := headers(v)
	if len(cols) == 0 {
		return pdf.Output(w)
	}
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(cols))
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	printHeader := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range cols {
			pdf.CellFormat(colW, 6, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	printHeader()

	if v.Empty {
		pdf.CellFormat(colW*float64(len(cols)), 6, v.EmptyText, "1", 1, "C", false, 0, "")
		return pdf.Output(w)
	}

	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range v.Rows {
		if pdf.GetY()+6 > pageH-bottom {
			pdf.AddPage()
			printHeader()
		}
		for i := range cols {
			text := ""
			if i < len(row.Cells) {
				text = row.Cells[i].Text
			}
			align := "R"
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				align = "L"
			}
			pdf.CellFormat(colW, 6, fit(pdf, tr(text), colW-2), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

// fit shortens text with an ellipsis until it fits width.
func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	r := []rune(text)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

// ReadIDs reads a filter list from the first column of the first sheet.
// Rows that do not hold an id or range are skipped, so a header is allowed.
func ReadIDs(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	out := []string{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		for _, tok := range filter.ParseIDs(row[0]) {
			if _, err := filter.ParseToken(tok); err == nil {
				out = append(out, tok)
			}
		}
	}
	return out, nil
}
