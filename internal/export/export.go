// Package export renders listing pages as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/alfredjeanlab/datatable/internal/model"
)

// ContentType is the media type of the XLSX output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Column is one exported field. An empty Label falls back to Name.
type Column struct {
	Name  string
	Label string
}

// maxSheetName is the sheet name limit of the XLSX format.
const maxSheetName = 31

// WriteXLSX writes rows to w as a single-sheet workbook. The first column is
// the row header, followed by columns in order.
func WriteXLSX(w io.Writer, sheet, headerLabel string, columns []Column, rows []model.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = sheetName(sheet)
	if first := f.GetSheetName(0); first != sheet {
		if err := f.SetSheetName(first, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	titles := make([]any, 0, len(columns)+1)
	titles = append(titles, headerLabel)
	for _, c := range columns {
		label := c.Label
		if label == "" {
			label = c.Name
		}
		titles = append(titles, label)
	}
	if err := f.SetSheetRow(sheet, "A1", &titles); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header row: %w", err)
	}

	for i, r := range rows {
		values := make([]any, 0, len(columns)+1)
		values = append(values, r.Header)
		for _, c := range columns {
			values = append(values, cellValue(r.Fields[c.Name]))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(titles))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	default:
		return v
	}
}

var sheetNameReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

func sheetName(s string) string {
	s = sheetNameReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return "Sheet1"
	}
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}
