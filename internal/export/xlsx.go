package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Targets"

// WriteXLSX writes rows as a single-sheet workbook with the detailed layout.
// Numeric columns are written as number cells.
func WriteXLSX(w io.Writer, rows []Row) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range detailedColumns {
		header.AddCell().SetString(c.header)
	}

	for i := range rows {
		xr := sheet.AddRow()
		for _, c := range detailedColumns {
			v := c.value(&rows[i])
			cell := xr.AddCell()
			if c.numeric && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(f)
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
