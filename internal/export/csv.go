package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// WriteCSV writes rows using the standard or detailed column layout.
func WriteCSV(w io.Writer, rows []Row, f Format) error {
	if f == XLSX {
		return eris.New("export: xlsx is not a csv layout")
	}
	cols := columnsFor(f)

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers(f)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range rows {
		if err := cw.Write(record(cols, &rows[i])); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
