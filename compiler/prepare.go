package compiler

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/schema"
)

// Config controls one compilation.
type Config struct {
	// Flavor renders dialect-specific SQL. Required.
	Flavor dialect.Flavor
	// Names maps record types and fields to tables and columns. A nil
	// Names falls back to a private default mapper.
	Names *schema.Names
	// DisableAutoJoin turns off foreign-key join derivation; every table a
	// statement touches must then be joined explicitly.
	DisableAutoJoin bool
	// DisableRecords rejects record instances as template values.
	DisableRecords bool
	// SafeMode turns the update/delete-without-WHERE advisory into an
	// error.
	SafeMode bool
}

// clause tracks which part of the statement the resolver is in while it
// scans the literal fragments.
type clause uint8

const (
	clauseNone clause = iota
	clauseSelect
	clauseInto
	clauseUpdate
	clauseSet
	clauseFrom
	clauseJoin
	clauseOn
	clauseWhere
	clauseGroup
	clauseHaving
	clauseOrder
	clauseValues
	clauseLimit
	clauseReturning
)

var clauseNames = [...]string{
	"statement", "SELECT", "INTO", "UPDATE", "SET", "FROM", "JOIN", "ON",
	"WHERE", "GROUP BY", "HAVING", "ORDER BY", "VALUES", "LIMIT", "RETURNING",
}

func clauseName(c clause) string {
	if int(c) < len(clauseNames) {
		return clauseNames[c]
	}
	return clauseNames[clauseNone]
}

var clauseKeywords = map[string]clause{
	"SELECT":    clauseSelect,
	"INTO":      clauseInto,
	"UPDATE":    clauseUpdate,
	"SET":       clauseSet,
	"FROM":      clauseFrom,
	"JOIN":      clauseJoin,
	"ON":        clauseOn,
	"WHERE":     clauseWhere,
	"GROUP":     clauseGroup,
	"HAVING":    clauseHaving,
	"ORDER":     clauseOrder,
	"VALUES":    clauseValues,
	"LIMIT":     clauseLimit,
	"OFFSET":    clauseLimit,
	"RETURNING": clauseReturning,
}

// sqlKeywords are words that never serve as a user-written table alias.
var sqlKeywords = map[string]bool{
	"SELECT": true, "INSERT": true, "INTO": true, "UPDATE": true, "SET": true,
	"DELETE": true, "FROM": true, "JOIN": true, "ON": true, "WHERE": true,
	"GROUP": true, "HAVING": true, "ORDER": true, "VALUES": true,
	"LIMIT": true, "OFFSET": true, "RETURNING": true, "AND": true, "OR": true,
	"NOT": true, "AS": true, "ASC": true, "DESC": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true,
	"UNION": true, "ALL": true, "EXCEPT": true, "INTERSECT": true,
	"IS": true, "NULL": true, "LIKE": true, "IN": true, "EXISTS": true,
	"BETWEEN": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true, "DISTINCT": true, "BY": true, "USING": true,
}

// scanClause advances the clause state across one fragment. Keywords
// inside parentheses belong to a nested statement and are ignored; depth
// carries across fragments so a parenthesis opened before a placeholder
// still shields the text after it.
func scanClause(frag string, cur clause, depth int) (clause, int) {
	for i := 0; i < len(frag); {
		b := frag[i]
		switch {
		case b == '(':
			depth++
			i++
		case b == ')':
			depth--
			i++
		case isWordStart(b):
			j := i + 1
			for j < len(frag) && isWordByte(frag[j]) {
				j++
			}
			if depth == 0 {
				if c, ok := clauseKeywords[strings.ToUpper(frag[i:j])]; ok {
					cur = c
				}
			}
			i = j
		default:
			i++
		}
	}
	return cur, depth
}

func isWordStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordByte(b byte) bool {
	return isWordStart(b) || (b >= '0' && b <= '9')
}

// trailing returns the last word and last non-space byte of a fragment,
// the context that decides what the following value means.
func trailing(s string) (word string, ch byte) {
	i := len(s) - 1
	for i >= 0 && isSpace(s[i]) {
		i--
	}
	if i < 0 {
		return "", 0
	}
	ch = s[i]
	j := i
	for j >= 0 && isWordByte(s[j]) {
		j--
	}
	if j < i {
		word = strings.ToUpper(s[j+1 : i+1])
	}
	return word, ch
}

// leadingIdent returns the first word of a fragment when it can serve as a
// user-written alias, or "" when the text continues with a keyword.
func leadingIdent(s string) string {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i >= len(s) || !isWordStart(s[i]) {
		return ""
	}
	j := i + 1
	for j < len(s) && isWordByte(s[j]) {
		j++
	}
	w := s[i:j]
	if sqlKeywords[strings.ToUpper(w)] {
		return ""
	}
	return w
}

func predicatePos(cur clause, last string, lastCh byte) bool {
	switch cur {
	case clauseWhere, clauseOn, clauseHaving:
	default:
		return false
	}
	switch last {
	case "WHERE", "AND", "OR", "NOT", "ON", "HAVING":
		return true
	}
	return lastCh == '('
}

// joinClause is one derived or explicit join, emitted after the FROM
// source. Derived joins carry pre-rendered ON text; explicit joins keep
// their ON template and compile it in statement scope at emission.
type joinClause struct {
	kw      string
	outer   bool
	auto    bool
	source  string
	alias   string
	target  *schema.Type
	on      string
	onExpr  *TemplateExpr
	elemIdx int // template position of an explicit join, for rebinding
	path    string
}

// preparer carries one statement through resolution, post-processing and
// the two compilation walks. Subqueries get child preparers correlated
// through the alias scope chain and sharing the assembly.
type preparer struct {
	asm         *assembly
	tmpl        Template
	clean       []string
	elements    []Element
	aliases     *AliasMapper
	tables      *TableMapper
	derived     map[string]bool
	op          Op
	root        *schema.Type
	rootAlias   string
	fromIdx     int
	fromElem    *Element
	selectElem  *Element
	selectAlias string
	selectPath  string
	joins       []joinClause
	customJoins []joinClause
	subFrom     bool
	generated   []string
	ran         bool
	runErr      error
}

func newPreparer(t Template, asm *assembly, aliases *AliasMapper) *preparer {
	return &preparer{
		asm:     asm,
		tmpl:    t,
		aliases: aliases,
		tables:  NewTableMapper(),
		derived: make(map[string]bool),
		fromIdx: -1,
	}
}

func (p *preparer) flavor() dialect.Flavor { return p.asm.cfg.Flavor }

func (p *preparer) names() *schema.Names { return p.asm.cfg.Names }

func (p *preparer) qualify(alias string, c schema.ColumnName) string {
	col := c.Render(p.flavor().Quote)
	if alias == "" {
		return col
	}
	return alias + "." + col
}

func (p *preparer) qualifyAll(alias string, cols []schema.ColumnName) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = p.qualify(alias, c)
	}
	return out
}

func (p *preparer) placeholderList(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.asm.placeholder(""))
	}
	return b.String()
}

// run takes the template through validation, classification, resolution
// and post-processing. It executes once; subqueries run lazily when the
// enclosing statement first compiles them, after the outer scope is fully
// registered.
func (p *preparer) run() error {
	if p.ran {
		return p.runErr
	}
	p.ran = true
	p.runErr = p.runOnce()
	return p.runErr
}

func (p *preparer) runOnce() error {
	if err := p.tmpl.validate(); err != nil {
		return err
	}
	p.neutralize()
	p.classifyOp()
	elems, subFrom, err := p.resolveValues(p.tmpl.Values)
	if err != nil {
		return err
	}
	p.elements = elems
	p.subFrom = subFrom
	return p.postProcess()
}

// neutralize blanks comments and literal spans in the fragments so clause
// scanning cannot be fooled by keywords inside strings or quoted names.
func (p *preparer) neutralize() {
	p.clean = make([]string, len(p.tmpl.Fragments))
	for i, frag := range p.tmpl.Fragments {
		s := stripComments(frag, p.flavor())
		for _, re := range p.flavor().LiteralPatterns() {
			s = re.ReplaceAllString(s, "_")
		}
		p.clean[i] = s
	}
}

// classifyOp classifies over the literal text: fragments plus any unsafe
// raw SQL values, which take part the same as written text.
func (p *preparer) classifyOp() {
	var b strings.Builder
	for i, frag := range p.tmpl.Fragments {
		b.WriteString(frag)
		if i < len(p.tmpl.Values) {
			if el, ok := p.tmpl.Values[i].(Element); ok && el.Kind == KindUnsafe {
				b.WriteString(el.Text)
			} else {
				b.WriteString(" ")
			}
		}
	}
	p.op = Classify(b.String(), p.flavor())
}

// resolveValues maps each raw value to an element using its position in
// the surrounding text. The walk is deterministic and read-only on the
// preparer, so rebinding can re-run it against fresh values.
func (p *preparer) resolveValues(values []any) ([]Element, bool, error) {
	if len(values) != len(p.tmpl.Fragments)-1 {
		return nil, false, NewTemplateError("template declares %d placeholders but received %d values",
			len(p.tmpl.Fragments)-1, len(values))
	}
	elems := make([]Element, len(values))
	cur, depth := clauseNone, 0
	sawFrom, subFrom := false, false
	for i, v := range values {
		cur, depth = scanClause(p.clean[i], cur, depth)
		last, lastCh := trailing(p.clean[i])
		next := ""
		if i+1 < len(p.clean) {
			next = p.clean[i+1]
		}
		el, err := p.resolveValue(v, cur, last, lastCh, next, &sawFrom, &subFrom)
		if err != nil {
			return nil, false, err
		}
		elems[i] = el
	}
	return elems, subFrom, nil
}

func (p *preparer) resolveValue(v any, cur clause, last string, lastCh byte, next string, sawFrom, subFrom *bool) (Element, error) {
	switch x := v.(type) {
	case Element:
		return p.checkExplicit(x)
	case Template:
		if cur == clauseValues || cur == clauseSet {
			return Element{}, NewTemplateError("a nested template cannot appear in the %s clause", clauseName(cur))
		}
		if cur == clauseFrom && !*sawFrom {
			*sawFrom = true
			*subFrom = true
		}
		return Element{Kind: KindSubquery, Sub: x}, nil
	case TypeToken:
		return p.resolveToken(x, cur, last, next, sawFrom)
	case reflect.Type:
		return p.resolveToken(Token(x), cur, last, next, sawFrom)
	case Path:
		return Element{Kind: KindColumn, Path: x}, nil
	case Expr:
		return Element{Kind: KindWhere, Expr: x}, nil
	case nil:
		return Element{Kind: KindParam}, nil
	default:
		_ = x
	}
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	if schema.IsRefType(rt) {
		if predicatePos(cur, last, lastCh) {
			return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: EQ, Args: []any{v}}}, nil
		}
		return Element{Kind: KindParam, Value: v}, nil
	}
	if rec, ok := recordValue(v); ok {
		if p.asm.cfg.DisableRecords {
			return Element{}, NewTemplateError("record values are disabled; bind %T field by field", v)
		}
		switch {
		case cur == clauseValues:
			return Element{Kind: KindValues, Records: []reflect.Value{rec}}, nil
		case cur == clauseSet:
			return Element{Kind: KindSet, Records: []reflect.Value{rec}}, nil
		case predicatePos(cur, last, lastCh):
			return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: EQ, Args: []any{v}}}, nil
		default:
			return Element{}, NewTemplateError("a %T record cannot appear in the %s clause", v, clauseName(cur))
		}
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rt.Elem().Kind() != reflect.Uint8 {
		if cur == clauseValues {
			return p.resolveBatch(rv)
		}
		if predicatePos(cur, last, lastCh) {
			return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: In, Args: []any{v}}}, nil
		}
		return Element{Kind: KindParam, Value: v}, nil
	}
	if cur == clauseWhere && predicatePos(cur, last, lastCh) {
		return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: EQ, Args: []any{v}}}, nil
	}
	return Element{Kind: KindParam, Value: v}, nil
}

func (p *preparer) checkExplicit(e Element) (Element, error) {
	switch e.Kind {
	case KindJoin, KindTable:
		if tk, ok := e.Value.(TypeToken); ok {
			t, err := schema.TypeOf(tk.GoType())
			if err != nil {
				return Element{}, err
			}
			e.Type = t
			e.Value = nil
		}
		if e.Type == nil {
			return Element{}, NewTemplateError("a %s element needs a target type", e.Kind)
		}
		return e, nil
	case KindParam, KindUnsafe, KindBindVars:
		return e, nil
	default:
		return Element{}, NewTemplateError("a %s element cannot be used as a template value", e.Kind)
	}
}

func (p *preparer) resolveToken(tk TypeToken, cur clause, last, next string, sawFrom *bool) (Element, error) {
	if tk.GoType() == nil {
		return Element{}, NewTemplateError("nil type token")
	}
	t, err := schema.TypeOf(tk.GoType())
	if err != nil {
		return Element{}, err
	}
	if strings.HasPrefix(next, ".") {
		return Element{Kind: KindAliasRef, Type: t}, nil
	}
	switch {
	case last == "JOIN":
		return Element{Kind: KindTable, Type: t, Alias: leadingIdent(next)}, nil
	case cur == clauseFrom:
		if *sawFrom {
			return Element{Kind: KindTable, Type: t, Alias: leadingIdent(next)}, nil
		}
		*sawFrom = true
		if p.op == OpDelete {
			return Element{Kind: KindDelete, Type: t, Alias: leadingIdent(next)}, nil
		}
		return Element{Kind: KindFrom, Type: t, Alias: leadingIdent(next)}, nil
	case cur == clauseInto:
		return Element{Kind: KindInsert, Type: t}, nil
	case cur == clauseUpdate:
		return Element{Kind: KindUpdate, Type: t, Alias: leadingIdent(next)}, nil
	case cur == clauseSelect:
		return Element{Kind: KindSelect, Type: t}, nil
	default:
		return Element{}, NewTemplateError("unexpected type %s in the %s clause", t.Name(), clauseName(cur))
	}
}

func (p *preparer) resolveBatch(rv reflect.Value) (Element, error) {
	if p.asm.cfg.DisableRecords {
		return Element{}, NewTemplateError("record values are disabled")
	}
	if rv.Len() == 0 {
		return Element{}, NewTemplateError("an empty batch cannot appear after VALUES")
	}
	records := make([]reflect.Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		rec, ok := recordValue(rv.Index(i).Interface())
		if !ok {
			return Element{}, NewTemplateError("VALUES batches accept records only, got %s at index %d", rv.Index(i).Type(), i)
		}
		records = append(records, rec)
	}
	return Element{Kind: KindValues, Records: records}, nil
}

// postProcess fixes the statement's root, registers aliases and mappings,
// sweeps explicit table and join elements, derives the joins the selection
// needs, and orders the final join list with outer joins last.
func (p *preparer) postProcess() error {
	var primary *Element
	for i := range p.elements {
		e := &p.elements[i]
		if e.isPrimary() {
			if primary != nil {
				return NewTemplateError("multiple primary statement elements: %s and %s", primary.Kind, e.Kind)
			}
			primary = e
		}
		if e.Kind == KindSelect && p.selectElem == nil {
			p.selectElem = e
		}
	}
	if err := p.checkPrimaryOp(primary); err != nil {
		return err
	}
	p.locateFrom(primary)
	if p.fromElem != nil {
		if err := p.registerRoot(); err != nil {
			return err
		}
	}
	if err := p.sweepExplicit(); err != nil {
		return err
	}
	if p.root != nil {
		switch p.op {
		case OpSelect, OpUndefined:
			if !p.asm.cfg.DisableAutoJoin && !p.subFrom {
				if err := p.deriveJoins(p.root, p.rootAlias, "", false); err != nil {
					return err
				}
			} else {
				p.registerReachableFKs(p.root, p.rootAlias, "")
			}
			if err := p.resolveSelection(); err != nil {
				return err
			}
			if err := p.materializePaths(); err != nil {
				return err
			}
			p.demoteSelectedJoins()
		}
	}
	p.joins = append(p.joins, p.customJoins...)
	sort.SliceStable(p.joins, func(i, j int) bool {
		return !p.joins[i].outer && p.joins[j].outer
	})
	return nil
}

func (p *preparer) checkPrimaryOp(primary *Element) error {
	if primary == nil {
		return nil
	}
	want := map[ElementKind]Op{
		KindSelect: OpSelect,
		KindInsert: OpInsert,
		KindUpdate: OpUpdate,
		KindDelete: OpDelete,
	}[primary.Kind]
	op := p.op
	if op == OpUndefined {
		op = OpSelect
	}
	if want != op {
		return NewTemplateError("a %s element cannot appear in a %s statement", primary.Kind, op)
	}
	return nil
}

func (p *preparer) locateFrom(primary *Element) {
	switch p.op {
	case OpInsert, OpUpdate, OpDelete:
		if primary != nil {
			p.fromElem = primary
			for i := range p.elements {
				if &p.elements[i] == primary {
					p.fromIdx = i
					break
				}
			}
		}
	default:
		for i := range p.elements {
			if p.elements[i].Kind == KindFrom {
				p.fromElem = &p.elements[i]
				p.fromIdx = i
				break
			}
		}
	}
}

func (p *preparer) registerRoot() error {
	t := p.fromElem.Type
	if err := schema.Validate(t, schema.All); err != nil {
		return err
	}
	p.root = t
	switch p.op {
	case OpInsert:
		if pk := t.PrimaryKey(); pk != nil && pk.IsAuto() {
			cols, err := p.names().PrimaryKeyColumns(t)
			if err != nil {
				return err
			}
			for _, c := range cols {
				p.generated = append(p.generated, c.Name)
			}
		}
	case OpUpdate:
		alias := p.fromElem.Alias
		if p.flavor().SupportsUpdateAlias() {
			if alias == "" {
				alias = p.aliases.Generate(t, "")
				p.fromElem.genAlias = alias
			} else {
				p.aliases.Set(t, alias, "")
			}
		} else {
			alias = ""
			p.aliases.Set(t, "", "")
		}
		p.rootAlias = alias
		p.tables.MapPrimaryKey(t, alias, t, "")
		p.registerReachableFKs(t, alias, "")
	case OpDelete:
		// Deletes never derive joins: predicates resolve through the
		// foreign-key mappings of the root table, and the alias stays as
		// written (usually absent), keeping the statement portable.
		alias := p.fromElem.Alias
		p.aliases.Set(t, alias, "")
		p.rootAlias = alias
		p.tables.MapPrimaryKey(t, alias, t, "")
		p.registerReachableFKs(t, alias, "")
	default:
		alias := p.fromElem.Alias
		if alias == "" {
			alias = p.aliases.Generate(t, "")
			p.fromElem.genAlias = alias
		} else {
			p.aliases.Set(t, alias, "")
		}
		p.rootAlias = alias
		p.tables.MapPrimaryKey(t, alias, t, "")
	}
	return nil
}

// registerReachableFKs makes every foreign key reachable through non-key
// records resolvable as a mapping on the given alias, without deriving any
// join.
func (p *preparer) registerReachableFKs(t *schema.Type, alias, path string) {
	for _, f := range t.Fields() {
		key := joinPath(path, f.Name())
		switch {
		case f.IsFK():
			if p.derived[key] {
				continue
			}
			p.derived[key] = true
			p.tables.MapForeignKey(t, alias, f, p.root, key)
		case f.Record() != nil:
			p.registerReachableFKs(f.Record(), alias, key)
		}
	}
}

func (p *preparer) sweepExplicit() error {
	for i := range p.elements {
		e := &p.elements[i]
		switch e.Kind {
		case KindTable:
			if err := p.registerTable(e, i); err != nil {
				return err
			}
		case KindFrom:
			if i != p.fromIdx {
				if err := p.registerTable(e, i); err != nil {
					return err
				}
			}
		case KindJoin:
			if err := p.sweepJoin(e, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *preparer) registerTable(e *Element, idx int) error {
	t := e.Type
	if err := schema.Validate(t, schema.All); err != nil {
		return err
	}
	pathKey := "@" + strconv.Itoa(idx)
	alias := e.Alias
	if alias == "" {
		alias = p.aliases.Generate(t, pathKey)
		e.genAlias = alias
	} else {
		p.aliases.Set(t, alias, pathKey)
	}
	p.tables.MapPrimaryKey(t, alias, p.root, pathKey)
	p.registerReachableFKs(t, alias, pathKey)
	return nil
}

func (p *preparer) sweepJoin(e *Element, idx int) error {
	t := e.Type
	if err := schema.Validate(t, schema.All); err != nil {
		return err
	}
	pathKey := "@" + strconv.Itoa(idx)
	alias := e.Join.Alias
	if alias == "" {
		alias = p.aliases.Generate(t, pathKey)
	} else {
		p.aliases.Set(t, alias, pathKey)
	}
	p.tables.MapPrimaryKey(t, alias, p.root, pathKey)
	p.registerReachableFKs(t, alias, pathKey)
	j := joinClause{
		kw:      e.Join.Kind.String(),
		outer:   e.Join.Kind.outer(),
		source:  p.renderSource(t),
		alias:   alias,
		target:  t,
		elemIdx: idx,
		path:    pathKey,
	}
	if len(e.Join.On.Fragments) > 0 {
		j.onExpr = &TemplateExpr{Tmpl: e.Join.On}
	}
	p.customJoins = append(p.customJoins, j)
	*e = Element{Kind: KindNone}
	return nil
}

func (p *preparer) renderSource(t *schema.Type) string {
	if vq := t.ViewQuery(); vq != "" {
		return "(" + vq + ")"
	}
	return p.names().Table(t).Render(p.flavor().Quote)
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}

func joinKeyword(outer bool) string {
	if outer {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// deriveJoins walks the record graph from t: every record-valued foreign
// key becomes a join, left outer as soon as the field or any ancestor on
// the path is nullable. Lazy references register a mapping but join only
// on demand. Inline records descend without switching alias.
func (p *preparer) deriveJoins(t *schema.Type, alias, path string, outer bool) error {
	for _, f := range t.Fields() {
		key := joinPath(path, f.Name())
		switch {
		case f.RefTarget() != nil:
			if p.derived[key] {
				continue
			}
			p.derived[key] = true
			p.tables.MapForeignKey(t, alias, f, p.root, key)
		case f.IsFK() && f.Record() != nil:
			if p.derived[key] {
				continue
			}
			p.derived[key] = true
			target := f.Record()
			childOuter := outer || f.Nullable()
			p.tables.MapForeignKey(t, alias, f, p.root, key)
			childAlias := p.aliases.Generate(target, key)
			on, err := p.joinOn(alias, f, target, childAlias)
			if err != nil {
				return err
			}
			p.joins = append(p.joins, joinClause{
				kw:     joinKeyword(childOuter),
				outer:  childOuter,
				auto:   true,
				source: p.renderSource(target),
				alias:  childAlias,
				target: target,
				on:     on,
				path:   key,
			})
			if err := p.deriveJoins(target, childAlias, key, childOuter); err != nil {
				return err
			}
		case f.Record() != nil:
			if err := p.deriveJoins(f.Record(), alias, key, outer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *preparer) joinOn(fromAlias string, f *schema.Field, target *schema.Type, toAlias string) (string, error) {
	fkCols, err := p.names().ForeignKeyColumns(f)
	if err != nil {
		return "", err
	}
	pkCols, err := p.names().PrimaryKeyColumns(target)
	if err != nil {
		return "", err
	}
	if len(fkCols) != len(pkCols) {
		return "", NewTemplateError("%s.%s: %d key columns reference %d primary-key columns",
			f.Owner().Name(), f.Name(), len(fkCols), len(pkCols))
	}
	parts := make([]string, len(fkCols))
	for i := range fkCols {
		parts[i] = p.qualify(fromAlias, fkCols[i]) + " = " + p.qualify(toAlias, pkCols[i])
	}
	return strings.Join(parts, " AND "), nil
}

// resolveSelection locates (or derives) the alias of the selected
// projection and expands its own reference subtree so the select list can
// flatten nested records.
func (p *preparer) resolveSelection() error {
	if p.selectElem == nil {
		return nil
	}
	t := p.selectElem.Type
	if t == p.root {
		p.selectAlias, p.selectPath = p.rootAlias, ""
		return nil
	}
	if err := schema.Validate(t, schema.All); err != nil {
		return err
	}
	var alias, path string
	n := 0
	for k, a := range p.aliases.aliases {
		if k.t == t {
			alias, path, n = a, k.path, n+1
		}
	}
	switch {
	case n > 1:
		return NewTemplateError("%s is aliased more than once; selecting it is ambiguous", t.Name())
	case n == 1:
		p.selectAlias, p.selectPath = alias, path
		if p.asm.cfg.DisableAutoJoin {
			return nil
		}
		return p.deriveJoins(t, alias, path, false)
	}
	if p.asm.cfg.DisableAutoJoin {
		return NewTemplateError("auto-join is disabled; join %s explicitly to select it", t.Name())
	}
	segs, err := findFieldPath(p.root, t)
	if err != nil {
		return err
	}
	alias, path, err = p.materializeFieldPath(segs)
	if err != nil {
		return err
	}
	p.selectAlias, p.selectPath = alias, path
	return p.deriveJoins(t, alias, path, false)
}

// findFieldPath locates the unique field path from root to target across
// foreign-key, reference and inline edges.
func findFieldPath(root, target *schema.Type) ([]*schema.Field, error) {
	type node struct {
		t    *schema.Type
		path []*schema.Field
	}
	queue := []node{{t: root}}
	seen := map[*schema.Type]bool{root: true}
	var found [][]*schema.Field
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, f := range n.t.Fields() {
			var next *schema.Type
			switch {
			case f.IsFK() || f.RefTarget() != nil:
				next = f.Target()
			case f.Record() != nil:
				next = f.Record()
			}
			if next == nil {
				continue
			}
			path := append(append([]*schema.Field{}, n.path...), f)
			if next == target {
				found = append(found, path)
				continue
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, node{t: next, path: path})
			}
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, NewTemplateError("%s is not reachable from %s; join it explicitly", target.Name(), root.Name())
	default:
		return nil, NewTemplateError("%s is reachable from %s through %d paths; join it explicitly",
			target.Name(), root.Name(), len(found))
	}
}

// materializeFieldPath joins every reference segment of the path that is
// not joined yet and returns the alias and root path of the last segment.
func (p *preparer) materializeFieldPath(segs []*schema.Field) (string, string, error) {
	alias, path, outer := p.rootAlias, "", false
	for _, f := range segs {
		childPath := joinPath(path, f.Name())
		if f.Record() != nil && !f.IsFK() {
			path = childPath
			continue
		}
		target := f.Target()
		outer = outer || f.Nullable()
		a, err := p.aliases.Get(target, childPath, ResolveInner, missingAlias)
		if err != nil {
			a = p.aliases.Generate(target, childPath)
			on, oerr := p.joinOn(alias, f, target, a)
			if oerr != nil {
				return "", "", oerr
			}
			p.joins = append(p.joins, joinClause{
				kw:     joinKeyword(outer),
				outer:  outer,
				auto:   true,
				source: p.renderSource(target),
				alias:  a,
				target: target,
				on:     on,
				path:   childPath,
			})
		}
		alias, path = a, childPath
	}
	return alias, path, nil
}

func missingAlias() error {
	return errAliasMissing
}

var errAliasMissing = NewTemplateError("alias not bound")

// materializePaths derives the joins that explicit metamodel paths in the
// select list and predicates walk through.
func (p *preparer) materializePaths() error {
	var specs []string
	for i := range p.elements {
		collectPathSpecs(&p.elements[i], &specs)
	}
	for _, s := range specs {
		if _, _, err := p.walkPath(s, !p.asm.cfg.DisableAutoJoin); err != nil {
			return err
		}
	}
	return nil
}

func collectPathSpecs(e *Element, out *[]string) {
	switch e.Kind {
	case KindColumn:
		if s := e.Path.Spec(); s != "" {
			*out = append(*out, s)
		}
	case KindWhere:
		collectExprPaths(e.Expr, out)
	}
}

func collectExprPaths(x Expr, out *[]string) {
	switch v := x.(type) {
	case *ObjectExpr:
		if s := v.Path.Spec(); s != "" {
			*out = append(*out, s)
		}
	case *TemplateExpr:
		for _, val := range v.Tmpl.Values {
			switch vv := val.(type) {
			case Path:
				if s := vv.Spec(); s != "" {
					*out = append(*out, s)
				}
			case Expr:
				collectExprPaths(vv, out)
			}
		}
	}
}

// walkPath resolves a dotted field path from the root, returning the alias
// owning the leaf's columns and the leaf field itself. Intermediate
// reference segments must be joined; with derive set, missing joins are
// created on demand.
func (p *preparer) walkPath(spec string, derive bool) (string, *schema.Field, error) {
	if p.root == nil {
		return "", nil, NewTemplateError("path %q requires a root table", spec)
	}
	segs := strings.Split(spec, ".")
	t, alias, path, outer := p.root, p.rootAlias, "", false
	for i, seg := range segs {
		f := t.Field(seg)
		if f == nil {
			return "", nil, NewTemplateError("%s has no field %q (path %q)", t.Name(), seg, spec)
		}
		if i == len(segs)-1 {
			return alias, f, nil
		}
		childPath := joinPath(path, seg)
		switch {
		case f.Record() != nil && !f.IsFK():
			t, path = f.Record(), childPath
		case f.Target() != nil:
			target := f.Target()
			outer = outer || f.Nullable()
			a, err := p.aliases.Get(target, childPath, ResolveCascade, missingAlias)
			if err != nil {
				if !derive {
					return "", nil, NewTemplateError("path %q crosses %s.%s before it is joined", spec, t.Name(), seg)
				}
				a = p.aliases.Generate(target, childPath)
				on, oerr := p.joinOn(alias, f, target, a)
				if oerr != nil {
					return "", nil, oerr
				}
				p.joins = append(p.joins, joinClause{
					kw:     joinKeyword(outer),
					outer:  outer,
					auto:   true,
					source: p.renderSource(target),
					alias:  a,
					target: target,
					on:     on,
					path:   childPath,
				})
			}
			t, alias, path = target, a, childPath
		default:
			return "", nil, NewTemplateError("%s.%s is not a record; path %q walks past a scalar", t.Name(), seg, spec)
		}
	}
	return "", nil, NewTemplateError("empty path")
}

// demoteSelectedJoins turns a derived outer join inner when the statement
// selects that target: the selection asserts the rows exist.
func (p *preparer) demoteSelectedJoins() {
	if p.selectElem == nil {
		return
	}
	t := p.selectElem.Type
	for i := range p.joins {
		j := &p.joins[i]
		if j.auto && j.outer && j.target == t {
			j.outer = false
			j.kw = joinKeyword(false)
		}
	}
}

// compileSQL assembles the statement text: literal fragments verbatim,
// elements compiled in place. Placeholders are emitted here and only here,
// so the slot order is the text order.
func (p *preparer) compileSQL() (string, error) {
	var b strings.Builder
	for i, frag := range p.tmpl.Fragments {
		b.WriteString(frag)
		if i < len(p.elements) {
			s, err := p.compileElement(i, &p.elements[i])
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

func (p *preparer) compileElement(idx int, e *Element) (string, error) {
	switch e.Kind {
	case KindNone:
		return "", nil
	case KindSelect:
		return p.compileSelect(e)
	case KindFrom, KindDelete, KindUpdate:
		if idx == p.fromIdx {
			return p.compileFrom(e)
		}
		return p.compileTableRef(e)
	case KindInsert:
		return p.compileInsertTarget(e)
	case KindTable:
		return p.compileTableRef(e)
	case KindValues:
		return p.compileValues(e)
	case KindSet:
		return p.compileSet(e)
	default:
		return p.compileExprElement(e)
	}
}

func (p *preparer) compileSelect(e *Element) (string, error) {
	t := e.Type
	alias, base := p.rootAlias, ""
	if t != p.root {
		if p.selectAlias == "" {
			return "", NewTemplateError("selecting %s requires a FROM table element", t.Name())
		}
		alias, base = p.selectAlias, p.selectPath
	}
	var cols []string
	if err := p.appendSelectColumns(t, alias, base, &cols); err != nil {
		return "", err
	}
	return strings.Join(cols, ", "), nil
}

// appendSelectColumns flattens a projection into its select list, in field
// order: record-valued foreign keys expand to the joined table's columns,
// inline records and compound keys stay on the current alias, lazy
// references and converters contribute their storage columns. The walk
// mirrors the row mapper's column consumption exactly.
func (p *preparer) appendSelectColumns(t *schema.Type, alias, path string, out *[]string) error {
	for _, f := range t.Fields() {
		switch {
		case f.IsFK() && f.Record() != nil:
			target := f.Record()
			childPath := joinPath(path, f.Name())
			a, err := p.aliases.Get(target, childPath, ResolveCascade, func() error {
				return NewTemplateError("selecting %s requires joining %s (path %s)", t.Name(), target.Name(), childPath)
			})
			if err != nil {
				return err
			}
			if err := p.appendSelectColumns(target, a, childPath, out); err != nil {
				return err
			}
		case f.Record() != nil && f.RefTarget() == nil:
			if err := p.appendSelectColumns(f.Record(), alias, joinPath(path, f.Name()), out); err != nil {
				return err
			}
		default:
			cols, err := p.names().Columns(f)
			if err != nil {
				return err
			}
			for _, c := range cols {
				*out = append(*out, p.qualify(alias, c))
			}
		}
	}
	return nil
}

func (p *preparer) compileFrom(e *Element) (string, error) {
	var b strings.Builder
	b.WriteString(p.renderSource(e.Type))
	if e.genAlias != "" {
		b.WriteString(" ")
		b.WriteString(e.genAlias)
	}
	for i := range p.joins {
		j := &p.joins[i]
		b.WriteString(" ")
		b.WriteString(j.kw)
		b.WriteString(" ")
		b.WriteString(j.source)
		b.WriteString(" ")
		b.WriteString(j.alias)
		on := j.on
		if j.onExpr != nil {
			var err error
			on, err = j.onExpr.compile(p)
			if err != nil {
				return "", err
			}
		}
		if on != "" {
			b.WriteString(" ON ")
			b.WriteString(on)
		}
	}
	return b.String(), nil
}

func (p *preparer) compileTableRef(e *Element) (string, error) {
	src := p.renderSource(e.Type)
	if e.genAlias != "" {
		return src + " " + e.genAlias, nil
	}
	return src, nil
}

func (p *preparer) compileInsertTarget(e *Element) (string, error) {
	t := e.Type
	cols, err := p.insertColumns(t)
	if err != nil {
		return "", err
	}
	rendered := make([]string, len(cols))
	for i, c := range cols {
		rendered[i] = c.Render(p.flavor().Quote)
	}
	return p.names().Table(t).Render(p.flavor().Quote) + " (" + strings.Join(rendered, ", ") + ")", nil
}

// insertColumns flattens the insertable fields of t: every mapped column
// except auto-generated keys.
func (p *preparer) insertColumns(t *schema.Type) ([]schema.ColumnName, error) {
	var out []schema.ColumnName
	for _, f := range t.Fields() {
		if f.IsPK() && f.IsAuto() {
			continue
		}
		cols, err := p.names().Columns(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

func (p *preparer) compileValues(e *Element) (string, error) {
	if p.op != OpInsert || p.root == nil {
		return "", NewTemplateError("record values require an insert target")
	}
	cols, err := p.insertColumns(p.root)
	if err != nil {
		return "", err
	}
	tuples := make([]string, len(e.Records))
	for i := range e.Records {
		tuples[i] = "(" + p.placeholderList(len(cols)) + ")"
	}
	return strings.Join(tuples, ", "), nil
}

func (p *preparer) compileSet(e *Element) (string, error) {
	if p.op != OpUpdate || p.root == nil {
		return "", NewTemplateError("a record after SET requires an update target")
	}
	var parts []string
	if err := p.appendSetClauses(p.root, &parts); err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", NewTemplateError("%s has no updatable fields", p.root.Name())
	}
	return strings.Join(parts, ", "), nil
}

func (p *preparer) appendSetClauses(t *schema.Type, parts *[]string) error {
	for _, f := range t.Fields() {
		switch {
		case f.IsPK() || f.IsAuto():
			continue
		case f.IsVersion():
			col, err := p.names().Column(f)
			if err != nil {
				return err
			}
			q := p.qualify(p.rootAlias, col)
			*parts = append(*parts, q+" = "+q+" + 1")
			p.asm.versionAware = true
		case f.Record() != nil && !f.IsFK() && f.RefTarget() == nil:
			if err := p.appendSetClauses(f.Record(), parts); err != nil {
				return err
			}
		default:
			cols, err := p.names().Columns(f)
			if err != nil {
				return err
			}
			for _, c := range cols {
				*parts = append(*parts, p.qualify(p.rootAlias, c)+" = "+p.asm.placeholder(""))
			}
		}
	}
	return nil
}

// compileExprElement handles the element kinds legal both at statement
// level and inside expressions.
func (p *preparer) compileExprElement(e *Element) (string, error) {
	switch e.Kind {
	case KindNone:
		return "", nil
	case KindWhere:
		return e.Expr.compile(p)
	case KindColumn:
		return p.compileColumn(e)
	case KindAliasRef:
		return p.aliases.ByType(e.Type, ResolveCascade, nil)
	case KindParam:
		return p.compileParam(e)
	case KindBindVars:
		return p.compileBindVars()
	case KindSubquery:
		return p.compileSubquery(e)
	case KindUnsafe:
		return e.Text, nil
	default:
		return "", NewTemplateError("a %s element cannot appear in this context", e.Kind)
	}
}

func (p *preparer) compileColumn(e *Element) (string, error) {
	spec := e.Path.Spec()
	if r := e.Path.Root(); r != nil && p.root != nil && r != p.root.GoType() {
		return "", NewTemplateError("path %s is rooted at %s, statement root is %s",
			spec, r.Name(), p.root.Name())
	}
	alias, f, err := p.walkPath(spec, false)
	if err != nil {
		return "", err
	}
	var cols []schema.ColumnName
	if f.IsFK() || f.RefTarget() != nil {
		cols, err = p.names().ForeignKeyColumns(f)
	} else {
		cols, err = p.names().Columns(f)
	}
	if err != nil {
		return "", err
	}
	return strings.Join(p.qualifyAll(alias, cols), ", "), nil
}

func (p *preparer) compileParam(e *Element) (string, error) {
	if e.Name != "" {
		return p.asm.placeholder(e.Name), nil
	}
	if e.Value != nil {
		rv := reflect.ValueOf(e.Value)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			return p.placeholderList(rv.Len()), nil
		}
	}
	return p.asm.placeholder(""), nil
}

func (p *preparer) compileBindVars() (string, error) {
	if p.root == nil {
		return "", NewTemplateError("bind variables require a root table")
	}
	if p.asm.bindVars != nil {
		return "", NewTemplateError("only one bind-variables block per statement")
	}
	pkCols, err := p.names().PrimaryKeyColumns(p.root)
	if err != nil {
		return "", err
	}
	if len(pkCols) == 0 {
		return "", NewTemplateError("%s has no primary key for bind variables", p.root.Name())
	}
	parts := make([]string, len(pkCols))
	spec := &BindVarsSpec{Type: p.root}
	for i, c := range pkCols {
		parts[i] = p.qualify(p.rootAlias, c) + " = " + p.asm.placeholder("")
		spec.Columns = append(spec.Columns, c.Name)
	}
	text := strings.Join(parts, " AND ")
	spec.Arity = len(pkCols)
	if vf := p.root.Version(); vf != nil && (p.op == OpUpdate || p.op == OpDelete) {
		vcol, err := p.names().Column(vf)
		if err != nil {
			return "", err
		}
		text += " AND " + p.qualify(p.rootAlias, vcol) + " = " + p.asm.placeholder("")
		spec.Columns = append(spec.Columns, vcol.Name)
		spec.VersionAware = true
		spec.Arity++
		p.asm.versionAware = true
	}
	p.asm.bindVars = spec
	return text, nil
}

func (p *preparer) compileSubquery(e *Element) (string, error) {
	sub := p.subPreparer(e)
	if err := sub.run(); err != nil {
		return "", err
	}
	s, err := sub.compileSQL()
	if err != nil {
		return "", err
	}
	return "(" + s + ")", nil
}

func (p *preparer) subPreparer(e *Element) *preparer {
	if e.prep == nil {
		e.prep = newPreparer(e.Sub, p.asm, p.aliases.Child())
	}
	return e.prep
}

// bindAll walks elements in text order emitting values; it mirrors the
// compile walk exactly, which is what keeps values aligned with
// placeholders.
func (p *preparer) bindAll(elements []Element, b *binder) error {
	for i := range elements {
		if err := p.bindElement(i, elements, b); err != nil {
			return err
		}
	}
	return nil
}

func (p *preparer) bindElement(idx int, elements []Element, b *binder) error {
	e := &elements[idx]
	switch e.Kind {
	case KindFrom, KindDelete, KindUpdate:
		if idx == p.fromIdx {
			return p.bindJoins(elements, b)
		}
		return nil
	case KindWhere:
		return e.Expr.bind(p, b)
	case KindValues:
		return p.bindValues(e, b)
	case KindSet:
		return p.bindSet(e, b)
	case KindParam:
		return p.bindParam(e, b)
	case KindBindVars:
		b.bindVarsOffset = len(b.params)
		return nil
	case KindSubquery:
		sub := p.subPreparer(e)
		if err := sub.run(); err != nil {
			return err
		}
		return sub.bindAll(sub.elements, b)
	case KindJoin:
		// swept into the join list; bound at the FROM element
		return nil
	default:
		return nil
	}
}

// bindJoins emits the parameters of explicit join conditions in the order
// the joins render after the FROM source. The ON template is taken from
// the element list being bound, so rebinding picks up fresh values.
func (p *preparer) bindJoins(elements []Element, b *binder) error {
	for i := range p.joins {
		j := &p.joins[i]
		if j.onExpr == nil {
			continue
		}
		on := j.onExpr
		if j.elemIdx >= 0 && j.elemIdx < len(elements) && elements[j.elemIdx].Kind == KindJoin {
			on = &TemplateExpr{Tmpl: elements[j.elemIdx].Join.On}
		}
		if err := on.bind(p, b); err != nil {
			return err
		}
	}
	return nil
}

func (p *preparer) bindValues(e *Element, b *binder) error {
	if p.op != OpInsert || p.root == nil {
		return NewTemplateError("record values require an insert target")
	}
	for _, rv := range e.Records {
		if rv.Type() != p.root.GoType() {
			return NewValueError(p.root.Name(), "", fmt.Sprintf("cannot insert a %s into %s", rv.Type(), p.root.Name()))
		}
		for _, f := range p.root.Fields() {
			if f.IsPK() && f.IsAuto() {
				continue
			}
			vals, err := fieldValues(f, rv, true)
			if err != nil {
				return err
			}
			for _, v := range vals {
				b.add(v)
			}
		}
	}
	return nil
}

func (p *preparer) bindSet(e *Element, b *binder) error {
	if p.op != OpUpdate || p.root == nil {
		return NewTemplateError("a record after SET requires an update target")
	}
	for _, rv := range e.Records {
		if rv.Type() != p.root.GoType() {
			return NewValueError(p.root.Name(), "", fmt.Sprintf("cannot update %s with a %s", p.root.Name(), rv.Type()))
		}
		if err := p.bindSetFields(p.root, rv, b); err != nil {
			return err
		}
	}
	return nil
}

func (p *preparer) bindSetFields(t *schema.Type, rv reflect.Value, b *binder) error {
	for _, f := range t.Fields() {
		switch {
		case f.IsPK() || f.IsAuto() || f.IsVersion():
			continue
		case f.Record() != nil && !f.IsFK() && f.RefTarget() == nil:
			v := f.Value(rv)
			if !v.IsValid() {
				if err := p.bindSetNulls(f.Record(), b); err != nil {
					return err
				}
				continue
			}
			if err := p.bindSetFields(f.Record(), v, b); err != nil {
				return err
			}
		default:
			vals, err := fieldValues(f, rv, true)
			if err != nil {
				return err
			}
			for _, v := range vals {
				b.add(v)
			}
		}
	}
	return nil
}

// bindSetNulls emits NULL for every assignable column of a record whose
// inline holder is itself nil.
func (p *preparer) bindSetNulls(t *schema.Type, b *binder) error {
	for _, f := range t.Fields() {
		switch {
		case f.IsPK() || f.IsAuto() || f.IsVersion():
			continue
		case f.Record() != nil && !f.IsFK() && f.RefTarget() == nil:
			if err := p.bindSetNulls(f.Record(), b); err != nil {
				return err
			}
		default:
			for i := 0; i < columnCount(f); i++ {
				b.add(nil)
			}
		}
	}
	return nil
}

func (p *preparer) bindParam(e *Element, b *binder) error {
	if e.Name != "" {
		return b.addNamed(e.Name, e.Value)
	}
	if e.Value != nil {
		rv := reflect.ValueOf(e.Value)
		rt := rv.Type()
		if schema.IsRefType(rt) {
			key, _ := schema.RefKeyOf(rv)
			b.add(key)
			return nil
		}
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rt.Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				b.add(rv.Index(i).Interface())
			}
			return nil
		}
	}
	b.add(e.Value)
	return nil
}

// bindExprElement is the bind counterpart of compileExprElement.
func (p *preparer) bindExprElement(e *Element, b *binder) error {
	switch e.Kind {
	case KindWhere:
		return e.Expr.bind(p, b)
	case KindParam:
		return p.bindParam(e, b)
	case KindBindVars:
		b.bindVarsOffset = len(b.params)
		return nil
	case KindSubquery:
		sub := p.subPreparer(e)
		if err := sub.run(); err != nil {
			return err
		}
		return sub.bindAll(sub.elements, b)
	default:
		return nil
	}
}

// resolveExprTemplate resolves the values of a free-form expression: the
// whole template is predicate context, so records and references become
// key predicates and everything else binds as parameters.
func (p *preparer) resolveExprTemplate(t Template) ([]Element, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	elems := make([]Element, len(t.Values))
	for i, v := range t.Values {
		el, err := p.resolveExprValue(v, t.Fragments[i+1])
		if err != nil {
			return nil, err
		}
		elems[i] = el
	}
	return elems, nil
}

func (p *preparer) resolveExprValue(v any, next string) (Element, error) {
	switch x := v.(type) {
	case Element:
		switch x.Kind {
		case KindParam, KindUnsafe, KindBindVars:
			return x, nil
		default:
			return Element{}, NewTemplateError("a %s element cannot appear inside an expression", x.Kind)
		}
	case Template:
		return Element{Kind: KindSubquery, Sub: x}, nil
	case TypeToken:
		if !strings.HasPrefix(next, ".") {
			return Element{}, NewTemplateError("a bare type inside an expression must qualify a column, as in {type}.column")
		}
		t, err := schema.TypeOf(x.GoType())
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: KindAliasRef, Type: t}, nil
	case Path:
		return Element{Kind: KindColumn, Path: x}, nil
	case Expr:
		return Element{Kind: KindWhere, Expr: x}, nil
	case nil:
		return Element{Kind: KindParam}, nil
	default:
		_ = x
	}
	rt := reflect.TypeOf(v)
	if schema.IsRefType(rt) {
		return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: EQ, Args: []any{v}}}, nil
	}
	if _, ok := recordValue(v); ok {
		if p.asm.cfg.DisableRecords {
			return Element{}, NewTemplateError("record values are disabled; bind %T field by field", v)
		}
		return Element{Kind: KindWhere, Expr: &ObjectExpr{Op: EQ, Args: []any{v}}}, nil
	}
	return Element{Kind: KindParam, Value: v}, nil
}
