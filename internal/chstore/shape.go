// Package chstore is the typed access layer over the ClickHouse HTTP
// interface: declared query definitions, parameter binding, row
// decoding, and batch inserts.
package chstore

import (
	"fmt"
)

// ColumnType is the declared type of a result column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt64
	TypeFloat64
	// TypeBool maps a store-native 0/1 UInt8 column to a Go bool.
	TypeBool
	// TypeDateTime maps an epoch-millisecond Int64 column to time.Time (UTC).
	TypeDateTime
	TypeStringArray
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeBool:
		return "Bool"
	case TypeDateTime:
		return "DateTime"
	case TypeStringArray:
		return "Array(String)"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column declares one column of a row shape.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// RowShape declares the columns a query returns or a table accepts.
// Shapes are built once at startup and never mutated.
type RowShape []Column

// Row is a decoded result row: column name to typed value. Nullable
// columns carry nil when the store returned NULL; a value of exactly 0
// is a value, never "missing".
type Row map[string]any

func (s RowShape) validate() error {
	if len(s) == 0 {
		return fmt.Errorf("row shape has no columns")
	}
	seen := make(map[string]bool, len(s))
	for _, c := range s {
		if c.Name == "" {
			return fmt.Errorf("row shape has an unnamed column")
		}
		if seen[c.Name] {
			return fmt.Errorf("row shape declares column %q twice", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
