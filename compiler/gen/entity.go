package gen

import (
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/weft/compiler/load"
)

// compilerPkg is the import path of the runtime path types the generated
// code references.
const compilerPkg = "github.com/syssam/weft/compiler"

// entityFile builds the metamodel source for one entity: table and column
// constants, the reflected record type, and one typed path per field.
func (g *Generator) entityFile(e *load.Entity) (*jen.File, error) {
	f := jen.NewFile(packageName(e.Name))
	f.HeaderComment(g.cfg.Header)

	used := map[string]string{
		"Table":   "the table name",
		"Columns": "the column list",
		"Type":    "the record type",
	}
	claim := func(ident, field string) error {
		if prev, ok := used[ident]; ok {
			return NewSchemaError(e.Name, field,
				fmt.Sprintf("identifier %s collides with %s; rename the field or override its column", ident, prev))
		}
		used[ident] = "field " + field
		return nil
	}

	if e.NamedTable {
		f.Commentf("Table is the table %s maps to, resolved through its TableName method.", e.Name)
		f.Var().Id("Table").Op("=").New(jen.Qual(e.PkgPath, e.Name)).Dot("TableName").Call()
	} else {
		f.Commentf("Table is the table %s maps to under the default naming strategy.", e.Name)
		f.Const().Id("Table").Op("=").Lit(e.Table)
	}

	type column struct {
		ident, name, field string
		idx, width         int
	}
	var cols []column
	for _, fl := range e.Fields {
		for i, c := range fl.Columns {
			ident := "Column" + exportedIdent(c)
			if err := claim(ident, fl.Name); err != nil {
				return nil, err
			}
			cols = append(cols, column{ident: ident, name: c, field: fl.Name, idx: i + 1, width: len(fl.Columns)})
		}
	}
	if len(cols) > 0 {
		f.Const().DefsFunc(func(defs *jen.Group) {
			for _, c := range cols {
				if c.width == 1 {
					defs.Commentf("%s is the column of field %s.", c.ident, c.field)
				} else {
					defs.Commentf("%s is column %d of field %s.", c.ident, c.idx, c.field)
				}
				defs.Id(c.ident).Op("=").Lit(c.name)
			}
		})
		f.Comment("Columns lists the resolved columns of the table in field order.")
		f.Var().Id("Columns").Op("=").Index().String().ValuesFunc(func(vals *jen.Group) {
			for _, c := range cols {
				vals.Id(c.ident)
			}
		})
	}

	f.Commentf("Type is the %s record type.", e.Name)
	f.Var().Id("Type").Op("=").Qual("reflect", "TypeOf").Call(jen.Qual(e.PkgPath, e.Name).Values())

	var scalars, records []*load.Field
	for _, fl := range e.Fields {
		if fl.Target == nil {
			scalars = append(scalars, fl)
		} else {
			records = append(records, fl)
		}
	}

	if len(scalars) > 0 {
		for _, fl := range scalars {
			if err := claim(fl.Name, fl.Name); err != nil {
				return nil, err
			}
		}
		f.Comment("Field paths, resolvable wherever a template accepts a column.")
		f.Var().DefsFunc(func(defs *jen.Group) {
			for _, fl := range scalars {
				defs.Id(fl.Name).Op("=").Qual(compilerPkg, "NewPath").Call(jen.Id("Type"), jen.Lit(fl.Name))
			}
		})
	}

	for _, fl := range records {
		if err := claim(fl.Name, fl.Name); err != nil {
			return nil, err
		}
		members := []*load.Field{}
		for _, sub := range fl.Target.Fields {
			if sub.Target != nil {
				continue
			}
			if sub.Name == "Path" {
				return nil, NewSchemaError(e.Name, fl.Name,
					fmt.Sprintf("referenced type %s has a field named Path, which the reference struct reserves", fl.Target.Name))
			}
			members = append(members, sub)
		}
		if fl.Inline {
			f.Commentf("%s embeds the %s record; its columns live on this table.", fl.Name, fl.Target.Name)
		} else {
			f.Commentf("%s reaches the referenced %s; selecting through it derives the join.", fl.Name, fl.Target.Name)
		}
		fields := make([]jen.Code, 0, len(members)+1)
		fields = append(fields, jen.Id("Path").Qual(compilerPkg, "Path"))
		for _, sub := range members {
			fields = append(fields, jen.Id(sub.Name).Qual(compilerPkg, "Path"))
		}
		values := jen.Dict{
			jen.Id("Path"): jen.Qual(compilerPkg, "NewPath").Call(jen.Id("Type"), jen.Lit(fl.Name)),
		}
		for _, sub := range members {
			values[jen.Id(sub.Name)] = jen.Qual(compilerPkg, "NewPath").Call(
				jen.Id("Type"), jen.Lit(fl.Name+"."+sub.Name))
		}
		f.Var().Id(fl.Name).Op("=").Struct(fields...).Values(values)
	}

	return f, nil
}
