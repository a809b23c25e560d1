package lpn

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Reserved record keys. They are always written from the typed Record fields
// and win over spreadsheet columns that happen to share the name.
const (
	FieldLPN        = "LPN"
	FieldSheet      = "sheet"
	FieldRowNumber  = "rowNumber"
	FieldSourceFile = "__sourceFile"
)

// Record is one manifest row. The provenance fields are typed; every other
// spreadsheet column lives in Fields as a string or float64 scalar.
type Record struct {
	LPN        string
	Sheet      string
	RowNumber  int
	SourceFile string
	Fields     map[string]any
}

// Field returns the value stored under name, including the reserved keys.
func (r Record) Field(name string) (any, bool) {
	switch name {
	case FieldLPN:
		return r.LPN, true
	case FieldSheet:
		return r.Sheet, true
	case FieldRowNumber:
		return r.RowNumber, true
	case FieldSourceFile:
		if r.SourceFile == "" {
			return nil, false
		}
		return r.SourceFile, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[FieldLPN] = r.LPN
	out[FieldSheet] = r.Sheet
	out[FieldRowNumber] = r.RowNumber
	if r.SourceFile != "" {
		out[FieldSourceFile] = r.SourceFile
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rec := Record{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case FieldLPN:
			rec.LPN = scalarString(v)
		case FieldSheet:
			rec.Sheet = scalarString(v)
		case FieldSourceFile:
			rec.SourceFile = scalarString(v)
		case FieldRowNumber:
			n, ok := v.(float64)
			if !ok || n != math.Trunc(n) {
				return fmt.Errorf("record %s: %v is not an integer", FieldRowNumber, v)
			}
			rec.RowNumber = int(n)
		default:
			rec.Fields[k] = v
		}
	}
	*r = rec
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
