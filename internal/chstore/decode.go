package chstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var nullLiteral = []byte("null")

// decodeRow coerces one raw JSONEachRow object into a typed Row.
//
// The store returns loosely-typed values: 64-bit integers arrive as
// quoted numeric strings, booleans as 0/1, timestamps as epoch-ms
// integers. Coercions are table-driven off the declared column type.
// Unknown columns are ignored; a missing non-nullable column is a hard
// decode failure.
func decodeRow(shape RowShape, raw map[string]json.RawMessage) (Row, error) {
	row := make(Row, len(shape))
	for _, col := range shape {
		val, ok := raw[col.Name]
		if !ok {
			if col.Nullable {
				row[col.Name] = nil
				continue
			}
			return nil, &domain.DecodeError{Column: col.Name, Reason: "missing from result row"}
		}
		if bytes.Equal(val, nullLiteral) {
			if !col.Nullable {
				return nil, &domain.DecodeError{Column: col.Name, Reason: "null in non-nullable column"}
			}
			row[col.Name] = nil
			continue
		}

		decoded, err := coerceValue(col.Type, val)
		if err != nil {
			return nil, &domain.DecodeError{Column: col.Name, Reason: err.Error()}
		}
		row[col.Name] = decoded
	}
	return row, nil
}

func coerceValue(t ColumnType, raw json.RawMessage) (any, error) {
	switch t {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("expected string, got %s", raw)
		}
		return s, nil

	case TypeInt64:
		n, err := coerceInt64(raw)
		if err != nil {
			return nil, err
		}
		return n, nil

	case TypeFloat64:
		f, err := coerceFloat64(raw)
		if err != nil {
			return nil, err
		}
		return f, nil

	case TypeBool:
		// 0/1 flag column; JSON true/false accepted for forward compat.
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
		n, err := coerceInt64(raw)
		if err != nil || (n != 0 && n != 1) {
			return nil, fmt.Errorf("expected 0/1 flag, got %s", raw)
		}
		return n == 1, nil

	case TypeDateTime:
		ms, err := coerceInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("expected epoch-ms integer, got %s", raw)
		}
		return time.UnixMilli(ms).UTC(), nil

	case TypeStringArray:
		var arr []string
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("expected string array, got %s", raw)
		}
		if arr == nil {
			arr = []string{}
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unsupported column type %v", t)
	}
}

// coerceInt64 accepts both JSON numbers and the quoted decimal strings
// ClickHouse emits for Int64/UInt64 columns in JSON output.
func coerceInt64(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected integer, got %s", raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", s)
	}
	return n, nil
}

func coerceFloat64(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected number, got %s", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	return f, nil
}

// encodeRow validates one record against the shape and produces its
// wire form (bools as 0/1, timestamps as epoch ms) for JSONEachRow.
// Runs before any write is issued so a bad record fails the whole
// batch with nothing written.
func encodeRow(shape RowShape, row Row) (map[string]any, error) {
	out := make(map[string]any, len(shape))
	for _, col := range shape {
		val, ok := row[col.Name]
		if !ok || val == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("column %q: required value missing", col.Name)
			}
			out[col.Name] = nil
			continue
		}

		switch col.Type {
		case TypeString:
			s, ok := val.(string)
			if !ok {
				return nil, encodeTypeErr(col, val)
			}
			out[col.Name] = s
		case TypeInt64:
			switch v := val.(type) {
			case int64:
				out[col.Name] = v
			case int:
				out[col.Name] = int64(v)
			default:
				return nil, encodeTypeErr(col, val)
			}
		case TypeFloat64:
			f, ok := val.(float64)
			if !ok {
				return nil, encodeTypeErr(col, val)
			}
			out[col.Name] = f
		case TypeBool:
			b, ok := val.(bool)
			if !ok {
				return nil, encodeTypeErr(col, val)
			}
			if b {
				out[col.Name] = 1
			} else {
				out[col.Name] = 0
			}
		case TypeDateTime:
			ts, ok := val.(time.Time)
			if !ok {
				return nil, encodeTypeErr(col, val)
			}
			out[col.Name] = ts.UnixMilli()
		case TypeStringArray:
			arr, ok := val.([]string)
			if !ok {
				return nil, encodeTypeErr(col, val)
			}
			if arr == nil {
				arr = []string{}
			}
			out[col.Name] = arr
		default:
			return nil, fmt.Errorf("column %q: unsupported column type %v", col.Name, col.Type)
		}
	}
	return out, nil
}

func encodeTypeErr(col Column, val any) error {
	return fmt.Errorf("column %q: expected %s, got %T", col.Name, col.Type, val)
}
