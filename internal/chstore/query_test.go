package chstore

import (
	"testing"
)

func validDef() QueryDef {
	return QueryDef{
		Name: "things_list",
		Stmt: `SELECT id FROM things WHERE tenant_id = {tenant_id:String} /*when:kinds*/`,
		Params: []ParamSpec{
			{Name: "tenant_id", Type: "String", Required: true},
			{Name: "kinds", Type: "Array(String)", Fragment: "AND kind IN ({kinds:Array(String)})"},
		},
		Shape: RowShape{{Name: "id", Type: TypeString}},
	}
}

func TestQueryDefValidate(t *testing.T) {
	if err := validDef().validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}
}

func TestQueryDefValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QueryDef)
	}{
		{"no name", func(d *QueryDef) { d.Name = "" }},
		{"no statement", func(d *QueryDef) { d.Stmt = "   " }},
		{"duplicate parameter", func(d *QueryDef) {
			d.Params = append(d.Params, ParamSpec{Name: "tenant_id", Type: "String", Required: true})
		}},
		{"placeholder not in statement", func(d *QueryDef) {
			d.Params[0].Name = "tenant"
		}},
		{"optional without default", func(d *QueryDef) {
			d.Stmt += " LIMIT {limit:Int64}"
			d.Params = append(d.Params, ParamSpec{Name: "limit", Type: "Int64"})
		}},
		{"fragment without slot", func(d *QueryDef) {
			d.Params = append(d.Params, ParamSpec{
				Name: "statuses", Type: "Array(String)",
				Fragment: "AND status IN ({statuses:Array(String)})",
			})
		}},
		{"fragment missing its placeholder", func(d *QueryDef) {
			d.Params[1].Fragment = "AND kind = 'fixed'"
		}},
		{"slot without declared parameter", func(d *QueryDef) {
			d.Stmt += " /*when:orphan*/"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.mutate(&def)
			if err := def.validate(); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestMustDefPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for malformed definition")
		}
	}()
	MustDef(QueryDef{Name: "bad"})
}
