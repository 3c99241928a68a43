package compiler

import (
	"fmt"
	"reflect"
	"strings"
)

// Template is a parsed query template: literal SQL fragments interleaved
// with the values interpolated between them. Fragments and values
// alternate, so a well-formed template satisfies
// len(Fragments) == len(Values)+1.
type Template struct {
	Fragments []string
	Values    []any
}

// New splits format on "{}" placeholders and pairs the surrounding
// fragments with values. Shape mismatches are reported by Compile, not
// here, so call sites stay single-valued.
func New(format string, values ...any) Template {
	return Template{Fragments: strings.Split(format, "{}"), Values: values}
}

func (t Template) validate() error {
	if len(t.Fragments) != len(t.Values)+1 {
		return NewTemplateError("template declares %d placeholders but received %d values",
			len(t.Fragments)-1, len(t.Values))
	}
	return nil
}

// String renders the template with "{}" markers restored, for logs and
// error messages.
func (t Template) String() string {
	var b strings.Builder
	for i, f := range t.Fragments {
		if i > 0 {
			b.WriteString("{}")
		}
		b.WriteString(f)
	}
	return b.String()
}

// TypeToken names a record type inside a template. The surrounding text
// decides its meaning: after FROM it is the statement's table, after JOIN a
// join target, after INTO an insert target, in the select list a projected
// type, and immediately before a "." it stands for the table's alias.
type TypeToken struct {
	rt reflect.Type
}

// Token wraps a reflect.Type as a template value.
func Token(t reflect.Type) TypeToken {
	return TypeToken{rt: t}
}

// GoType returns the wrapped type.
func (tk TypeToken) GoType() reflect.Type { return tk.rt }

func (tk TypeToken) String() string {
	if tk.rt == nil {
		return "<nil>"
	}
	return tk.rt.String()
}

// Path is a typed reference to a field reachable from a root record type,
// written as dot-separated field names ("Customer.Name"). Generated
// metamodels produce these; hand-written paths work the same way.
type Path struct {
	root reflect.Type
	path string
}

// NewPath builds a path rooted at the given record type.
func NewPath(root reflect.Type, path string) Path {
	return Path{root: root, path: path}
}

// Root returns the record type the path starts from.
func (p Path) Root() reflect.Type { return p.root }

// Spec returns the dotted field path.
func (p Path) Spec() string { return p.path }

func (p Path) String() string {
	if p.root == nil {
		return p.path
	}
	return fmt.Sprintf("%s.%s", p.root.Name(), p.path)
}

// split returns the path's segments. An empty path has no segments.
func (p Path) split() []string {
	if p.path == "" {
		return nil
	}
	return strings.Split(p.path, ".")
}
