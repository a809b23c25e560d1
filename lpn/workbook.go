package lpn

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet as a grid of cell text. Short rows are padded with
// empty strings to the widest row.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is a parsed manifest file.
type Workbook struct {
	Name   string
	Sheets []Sheet
}

// ReadWorkbook parses an uploaded manifest. The format is chosen by file
// extension: .xlsx/.xlsm/.xltx workbooks or .csv text (one sheet named after the file).
func ReadWorkbook(name string, data []byte) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readXLSX(name, data)
	case ".csv":
		return readCSV(name, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

func readXLSX(name string, data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidWorkbook, name, err)
	}
	defer f.Close()

	wb := &Workbook{Name: name}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("%w: read sheet %q of %s: %v", ErrInvalidWorkbook, sheetName, name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: sheetName, Rows: padRows(rows)})
	}
	return wb, nil
}

func readCSV(name string, data []byte) (*Workbook, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidWorkbook, name, err)
	}
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return &Workbook{
		Name:   name,
		Sheets: []Sheet{{Name: stem, Rows: padRows(rows)}},
	}, nil
}

func padRows(rows [][]string) [][]string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			rows[i] = padded
		}
	}
	return rows
}
