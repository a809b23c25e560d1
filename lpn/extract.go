package lpn

import (
	"math"
	"strconv"
	"strings"
)

// HeaderName is the column title that marks a sheet's header row.
const HeaderName = "LPN"

// DefaultNumericFields are coerced from currency-formatted text into numbers.
var DefaultNumericFields = []string{"Qty", "Unit Retail", "Ext. Retail"}

// Extractor turns raw sheet grids into records.
type Extractor struct {
	// NumericFields lists column titles coerced to numbers when they parse.
	// nil uses DefaultNumericFields.
	NumericFields []string
}

// ExtractRecords is Extractor{}.Extract.
func ExtractRecords(sheet string, rows [][]string) ([]Record, bool) {
	return Extractor{}.Extract(sheet, rows)
}

// Extract maps every non-empty row after the header row to a Record. The
// boolean is false when no header row exists; that is not an error, the sheet
// simply contributes nothing.
func (e Extractor) Extract(sheet string, rows [][]string) ([]Record, bool) {
	headerRow := findHeaderRow(rows, HeaderName)
	if headerRow < 0 {
		return nil, false
	}

	headers := make([]string, len(rows[headerRow]))
	for i, h := range rows[headerRow] {
		headers[i] = strings.TrimSpace(h)
	}

	numeric := e.NumericFields
	if numeric == nil {
		numeric = DefaultNumericFields
	}

	records := make([]Record, 0, len(rows)-headerRow-1)
	for r := headerRow + 1; r < len(rows); r++ {
		row := rows[r]
		if isEmptyRow(row) {
			continue
		}

		rec := Record{
			Sheet:     sheet,
			RowNumber: r + 1,
			Fields:    make(map[string]any, len(headers)),
		}
		for c, name := range headers {
			if name == "" {
				continue
			}
			value := ""
			if c < len(row) {
				value = row[c]
			}
			if strings.EqualFold(name, HeaderName) {
				rec.LPN = strings.TrimSpace(value)
				continue
			}
			if isReservedField(name) {
				continue
			}
			rec.Fields[name] = value
		}
		if rec.LPN == "" {
			continue
		}

		for _, name := range numeric {
			if v, ok := rec.Fields[name].(string); ok {
				if n, ok := parseCurrency(v); ok {
					rec.Fields[name] = n
				}
			}
		}
		records = append(records, rec)
	}
	return records, true
}

func findHeaderRow(rows [][]string, header string) int {
	for r, row := range rows {
		for _, cell := range row {
			if strings.EqualFold(strings.TrimSpace(cell), header) {
				return r
			}
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func isReservedField(name string) bool {
	switch name {
	case FieldSheet, FieldRowNumber, FieldSourceFile:
		return true
	}
	return false
}

// parseCurrency strips "$" and "," and parses the rest. Blank input is not a number.
func parseCurrency(s string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}
