package chstore

import (
	"fmt"
	"strings"
)

// QueryDef is an immutable query definition: a statement template with
// named {name:Type} placeholders and /*when:name*/ slots, the declared
// parameters, and the declared result shape. Definitions are built once
// at startup and are safe to share across concurrent calls.
type QueryDef struct {
	Name   string
	Stmt   string
	Params []ParamSpec
	Shape  RowShape
}

// MustDef validates a query definition and panics on a malformed one.
// A bad definition is a programmer error meant to surface in tests at
// startup, not a runtime condition.
func MustDef(def QueryDef) QueryDef {
	if err := def.validate(); err != nil {
		panic(fmt.Sprintf("invalid query definition %q: %v", def.Name, err))
	}
	return def
}

func (def QueryDef) validate() error {
	if def.Name == "" {
		return fmt.Errorf("definition has no name")
	}
	if strings.TrimSpace(def.Stmt) == "" {
		return fmt.Errorf("definition has no statement")
	}
	if err := def.Shape.validate(); err != nil {
		return err
	}

	gated := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		if p.Name == "" {
			return fmt.Errorf("unnamed parameter")
		}
		if _, ok := gated[p.Name]; ok {
			return fmt.Errorf("parameter %q declared twice", p.Name)
		}
		gated[p.Name] = p.Fragment != ""

		placeholder := "{" + p.Name + ":"
		if p.Fragment != "" {
			if !strings.Contains(def.Stmt, slotMarker(p.Name)) {
				return fmt.Errorf("optional parameter %q has no %s slot in statement", p.Name, slotMarker(p.Name))
			}
			if !strings.Contains(p.Fragment, placeholder) {
				return fmt.Errorf("fragment for %q does not bind its own placeholder", p.Name)
			}
			continue
		}
		if !strings.Contains(def.Stmt, placeholder) {
			return fmt.Errorf("parameter %q has no placeholder in statement", p.Name)
		}
		if !p.Required && p.Default == nil {
			return fmt.Errorf("parameter %q is neither required nor defaulted; it would leave a dangling placeholder", p.Name)
		}
	}

	// Every slot must belong to a declared optional parameter, or an
	// assembled statement could ship with a marker left in it.
	rest := def.Stmt
	for {
		idx := strings.Index(rest, "/*when:")
		if idx < 0 {
			break
		}
		end := strings.Index(rest[idx:], "*/")
		if end < 0 {
			return fmt.Errorf("unterminated slot marker")
		}
		name := rest[idx+len("/*when:") : idx+end]
		if !gated[name] {
			return fmt.Errorf("slot %s has no declared optional parameter", slotMarker(name))
		}
		rest = rest[idx+end:]
	}
	return nil
}
