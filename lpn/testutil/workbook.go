// Package testutil holds fixtures shared by the indexer and HTTP tests.
package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// SheetFixture is one worksheet written cell by cell from Rows.
type SheetFixture struct {
	Name string
	Rows [][]any
}

// ManifestXLSX renders sheets into an .xlsx file and returns its bytes.
func ManifestXLSX(tb testing.TB, sheets ...SheetFixture) []byte {
	tb.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				tb.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			tb.Fatalf("new sheet %q: %v", sheet.Name, err)
		}

		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				tb.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				tb.Fatalf("write row %d of %q: %v", r+1, sheet.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		tb.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// SingleSheetManifest is the common LPN manifest layout: a header row
// followed by data rows on a sheet named Sheet1.
func SingleSheetManifest(tb testing.TB, header []any, rows ...[]any) []byte {
	tb.Helper()
	all := make([][]any, 0, len(rows)+1)
	all = append(all, header)
	all = append(all, rows...)
	return ManifestXLSX(tb, SheetFixture{Name: "Sheet1", Rows: all})
}
