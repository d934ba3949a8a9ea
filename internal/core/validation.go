package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks the structural invariants a table definition must
// hold: exactly one primary key column, of type Int, and column names
// unique within the table.
func (t *TableDef) Validate() error {
	if t.Name == "" {
		return &ValidationError{Entity: "table", Name: t.Name, Message: "name must not be empty"}
	}
	if len(t.Columns) == 0 {
		return &ValidationError{Entity: "table", Name: t.Name, Message: "must have at least one column"}
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			return &ValidationError{Entity: "table", Name: t.Name, Field: c.Name, Message: "duplicate column name"}
		}
		seen[c.Name] = true
	}
	if t.PrimaryKey == "" {
		return &ValidationError{Entity: "table", Name: t.Name, Message: "must declare a primary key"}
	}
	pkIdx := t.ColumnIndex(t.PrimaryKey)
	if pkIdx < 0 {
		return &ValidationError{Entity: "table", Name: t.Name, Field: t.PrimaryKey, Message: "primary key references unknown column"}
	}
	if t.Columns[pkIdx].Type != TypeInt {
		return &ValidationError{Entity: "table", Name: t.Name, Field: t.PrimaryKey, Message: "primary key column must be INT"}
	}
	if t.Columns[pkIdx].Nullable {
		return &ValidationError{Entity: "table", Name: t.Name, Field: t.PrimaryKey, Message: "primary key column must not be nullable"}
	}
	for _, idx := range t.Indexes {
		if len(idx.Columns) == 0 {
			return &ValidationError{Entity: "index", Name: idx.Name, Message: "must reference at least one column"}
		}
		for _, col := range idx.Columns {
			if t.ColumnIndex(col) < 0 {
				return &ValidationError{Entity: "index", Name: idx.Name, Field: col, Message: "references unknown column"}
			}
		}
	}
	return nil
}

// CoerceLiteral attempts to coerce a cell produced by literal parsing
// into the column's declared type: Int to Float widening (a Float into
// an Int column is rejected), Text parse of Float/Date/DateTime,
// pass-through on exact match.
func CoerceLiteral(c Cell, col ColumnDef) (Cell, error) {
	if c.IsNull() {
		if !col.Nullable {
			return Cell{}, fmt.Errorf("column %q does not accept NULL", col.Name)
		}
		return NullCell(), nil
	}
	if c.Kind == kindFor(col.Type) {
		return c, nil
	}
	switch col.Type {
	case TypeFloat:
		if v, ok := c.AsFloat64(); ok {
			return FloatCell(v), nil
		}
		if c.Kind == KindText {
			if v, err := strconv.ParseFloat(strings.TrimSpace(c.S), 64); err == nil {
				return FloatCell(v), nil
			}
		}
	case TypeInt:
		if c.Kind == KindFloat {
			return Cell{}, fmt.Errorf("cannot coerce FLOAT value into INT column %q", col.Name)
		}
	case TypeText:
		return TextCell(cellToString(c)), nil
	case TypeDate:
		if c.Kind == KindText {
			days, err := ParseDateText(c.S)
			if err != nil {
				return Cell{}, err
			}
			return DateCell(days), nil
		}
	case TypeDateTime:
		if c.Kind == KindText {
			ms, err := ParseDateTimeText(c.S)
			if err != nil {
				return Cell{}, err
			}
			return DateTimeCell(ms), nil
		}
	}
	return Cell{}, fmt.Errorf("value of kind %v is not compatible with column %q of type %s", c.Kind, col.Name, col.Type)
}

func kindFor(t SqlType) CellKind {
	switch t {
	case TypeInt:
		return KindInt
	case TypeFloat:
		return KindFloat
	case TypeText:
		return KindText
	case TypeDate:
		return KindDate
	case TypeDateTime:
		return KindDateTime
	}
	return KindNull
}

func cellToString(c Cell) string {
	switch c.Kind {
	case KindText:
		return c.S
	case KindInt:
		return fmt.Sprintf("%d", c.I)
	case KindFloat:
		return fmt.Sprintf("%v", c.F)
	default:
		return ""
	}
}
