package chstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ParamSpec declares one named parameter of a query definition.
//
// A spec with a Fragment is presence-gated: when the caller supplies
// the parameter, the fragment (a fixed predicate string carrying the
// parameter's own {name:Type} placeholder) replaces the statement's
// /*when:name*/ slot and the value is bound; when absent, nil, or an
// empty list, the slot becomes the empty string and no predicate is
// emitted at all; an absent list filter must never match against an
// empty list.
//
// A spec without a Fragment must either be Required or carry a Default,
// so an assembled statement can never retain a dangling placeholder.
type ParamSpec struct {
	Name     string
	Type     string // ClickHouse type inside the {name:Type} placeholder
	Required bool
	// Default is evaluated at bind time against the client's clock, so
	// dynamic defaults ("12 months ago") stay deterministic in tests.
	Default  func(now time.Time) any
	Fragment string
}

func slotMarker(name string) string {
	return "/*when:" + name + "*/"
}

// isEmptyList reports whether a gated value is an explicitly-supplied
// empty list. An empty filter means "no filter", the same as absent;
// splicing the predicate would bind [] and silently match zero rows.
func isEmptyList(val any) bool {
	if v, ok := val.([]string); ok {
		return len(v) == 0
	}
	return false
}

// bindQuery merges caller arguments with declared defaults and
// assembles the final statement. Values never touch the statement text;
// they travel separately as param_* fields for the store's native
// parameter binding.
func bindQuery(def QueryDef, args map[string]any, now time.Time) (string, map[string]string, error) {
	stmt := def.Stmt
	params := make(map[string]string, len(def.Params))

	for _, p := range def.Params {
		if p.Fragment != "" {
			val, ok := args[p.Name]
			if !ok || val == nil || isEmptyList(val) {
				stmt = strings.Replace(stmt, slotMarker(p.Name), "", 1)
				continue
			}
			formatted, err := formatParam(val)
			if err != nil {
				return "", nil, fmt.Errorf("bind %s: parameter %q: %w", def.Name, p.Name, err)
			}
			stmt = strings.Replace(stmt, slotMarker(p.Name), p.Fragment, 1)
			params["param_"+p.Name] = formatted
			continue
		}

		val, ok := args[p.Name]
		if !ok {
			if p.Default == nil {
				return "", nil, &domain.BindError{Query: def.Name, Param: p.Name}
			}
			val = p.Default(now)
		}
		formatted, err := formatParam(val)
		if err != nil {
			return "", nil, fmt.Errorf("bind %s: parameter %q: %w", def.Name, p.Name, err)
		}
		params["param_"+p.Name] = formatted
	}

	return stmt, params, nil
}

// formatParam serializes a bound value into ClickHouse's HTTP parameter
// text form. These strings ride in param_* fields, never in the
// statement, so no SQL escaping is involved; only array literals need
// element quoting.
func formatParam(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		// Epoch milliseconds; templates read these via
		// fromUnixTimestamp64Milli.
		return strconv.FormatInt(v.UnixMilli(), 10), nil
	case []string:
		var b strings.Builder
		b.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('\'')
			b.WriteString(escapeArrayElem(elem))
			b.WriteByte('\'')
		}
		b.WriteByte(']')
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", val)
	}
}

func escapeArrayElem(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
