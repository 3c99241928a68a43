package compiler

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/syssam/weft/schema"
)

// ResolveScope selects how far an alias lookup may reach.
type ResolveScope uint8

const (
	// ResolveInner restricts resolution to the current statement scope.
	ResolveInner ResolveScope = iota
	// ResolveCascade reads through to enclosing scopes, which is what
	// correlates a subquery with its outer statement.
	ResolveCascade
)

type aliasKey struct {
	t    *schema.Type
	path string
}

// AliasMapper allocates and resolves table aliases within one statement
// compilation. A child mapper correlates with its parent: lookups cascade
// upward, writes stay local, and generated names never collide across the
// scope chain. The parent is never mutated through a child.
type AliasMapper struct {
	parent  *AliasMapper
	aliases map[aliasKey]string
	used    map[string]bool
}

// NewAliasMapper returns an empty root scope.
func NewAliasMapper() *AliasMapper {
	return &AliasMapper{
		aliases: make(map[aliasKey]string),
		used:    make(map[string]bool),
	}
}

// Child returns a correlated subquery scope.
func (m *AliasMapper) Child() *AliasMapper {
	c := NewAliasMapper()
	c.parent = m
	return c
}

// Generate allocates a fresh alias for t at the given metamodel path. The
// name derives from the type name's initials and is uniquified with a
// counter across the whole scope chain.
func (m *AliasMapper) Generate(t *schema.Type, path string) string {
	base := aliasBase(t.Name())
	alias := base
	for n := 2; m.isUsed(alias); n++ {
		alias = base + strconv.Itoa(n)
	}
	m.aliases[aliasKey{t: t, path: path}] = alias
	m.used[alias] = true
	return alias
}

// Set registers an explicit, user-written alias for t at the given path.
func (m *AliasMapper) Set(t *schema.Type, alias, path string) {
	m.aliases[aliasKey{t: t, path: path}] = alias
	m.used[alias] = true
}

// Get resolves the alias bound to (t, path). When nothing is bound,
// onMissing supplies the error; a nil onMissing falls back to a generic
// template error. The factory keeps error construction out of the hot
// path: most lookups succeed.
func (m *AliasMapper) Get(t *schema.Type, path string, scope ResolveScope, onMissing func() error) (string, error) {
	for s := m; s != nil; s = s.parent {
		if a, ok := s.aliases[aliasKey{t: t, path: path}]; ok {
			return a, nil
		}
		if scope == ResolveInner {
			break
		}
	}
	if onMissing == nil {
		onMissing = func() error {
			return NewTemplateError("no alias bound for %s at path %q", t.Name(), path)
		}
	}
	return "", onMissing()
}

// ByType resolves the alias for t irrespective of path, failing when the
// type is bound at more than one path in the nearest scope that knows it.
func (m *AliasMapper) ByType(t *schema.Type, scope ResolveScope, onMissing func() error) (string, error) {
	for s := m; s != nil; s = s.parent {
		var found []string
		for k, a := range s.aliases {
			if k.t == t {
				found = append(found, a)
			}
		}
		switch {
		case len(found) == 1:
			return found[0], nil
		case len(found) > 1:
			return "", NewTemplateError("%s is aliased more than once; specify a metamodel path", t.Name())
		}
		if scope == ResolveInner {
			break
		}
	}
	if onMissing == nil {
		onMissing = func() error {
			return NewTemplateError("no alias bound for %s", t.Name())
		}
	}
	return "", onMissing()
}

func (m *AliasMapper) isUsed(alias string) bool {
	for s := m; s != nil; s = s.parent {
		if s.used[alias] {
			return true
		}
	}
	return false
}

// reservedAliases are keyword collisions an initials-derived alias must
// avoid: "OrderNote" would otherwise alias to "on".
var reservedAliases = map[string]bool{
	"as": true, "at": true, "by": true, "do": true, "if": true, "in": true,
	"is": true, "no": true, "of": true, "on": true, "or": true, "to": true,
	"all": true, "and": true, "any": true, "asc": true, "for": true,
	"not": true, "set": true,
}

func aliasBase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i == 0 || unicode.IsUpper(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	base := b.String()
	if base == "" || reservedAliases[base] {
		base += "_"
	}
	return base
}
