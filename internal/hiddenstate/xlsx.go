package hiddenstate

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "HiddenStates"

// WriteXLSX saves a per-document summary of t (no raw vectors) as a workbook at path.
func WriteXLSX(path string, t *Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return err
	}

	headers := []string{"Document", "Tokens", "Dim", "Mean L2 Norm", "Preview"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(xlsxSheet, cell, h)
	}

	for i, r := range t.Rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(xlsxSheet, cell, v)
		}
		dim := 0
		if len(r.HiddenState) > 0 {
			dim = len(r.HiddenState[0])
		}
		write(1, r.Document)
		write(2, r.Tokens)
		write(3, dim)
		write(4, r.MeanNorm())
		write(5, r.Preview(8))
	}

	_ = f.SetColWidth(xlsxSheet, "A", "A", 40) // document
	_ = f.SetColWidth(xlsxSheet, "B", "D", 14)
	_ = f.SetColWidth(xlsxSheet, "E", "E", 80) // preview

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
