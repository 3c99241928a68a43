package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Flavor describes the SQL text conventions of one database dialect.
// The template compiler consumes it as a black box: it asks for identifier
// quoting, placeholder syntax, lexical patterns for comment/literal stripping,
// and the encoding of multi-column IN predicates. It never inspects the
// concrete type behind the interface.
type Flavor interface {
	// Name returns the dialect name (one of the package constants).
	Name() string
	// Quote escapes a single identifier part (no dots).
	Quote(ident string) string
	// Placeholder returns the bind placeholder for the 1-based position.
	Placeholder(position int) string
	// SupportsRowValues reports whether (a, b) IN ((?, ?), ...) is valid syntax.
	SupportsRowValues() bool
	// SupportsUpdateAlias reports whether UPDATE targets may carry an alias.
	SupportsUpdateAlias() bool
	// SupportsFullJoin reports whether FULL OUTER JOIN is available.
	SupportsFullJoin() bool
	// MultiValueIn renders a predicate matching the given columns against
	// rows many tuples. nextArg must be called once per emitted placeholder,
	// in emission order, and returns its SQL text.
	MultiValueIn(columns []string, rows int, nextArg func() string) (string, error)
	// CommentPatterns returns the regexes that match SQL comments.
	CommentPatterns() []*regexp.Regexp
	// LiteralPatterns returns the regexes matching string literals and quoted
	// identifiers, used to neutralize them before keyword scanning.
	LiteralPatterns() []*regexp.Regexp
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	hashComment  = regexp.MustCompile(`#[^\n]*`)
	sqlString    = regexp.MustCompile(`'(?:[^']|'')*'`)
	doubleQuoted = regexp.MustCompile(`"(?:[^"]|"")*"`)
	backQuoted   = regexp.MustCompile("`(?:[^`]|``)*`")
)

// flavor is the shared portable-SQL behavior. Concrete dialects embed it and
// override only what differs.
type flavor struct {
	name string
}

func (f flavor) Name() string { return f.name }

func (flavor) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (flavor) Placeholder(int) string { return "?" }

func (flavor) SupportsRowValues() bool   { return true }
func (flavor) SupportsUpdateAlias() bool { return true }
func (flavor) SupportsFullJoin() bool    { return true }

func (flavor) CommentPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{blockComment, lineComment}
}

func (flavor) LiteralPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{sqlString, doubleQuoted}
}

// MultiValueIn renders the row-value form (a, b) IN ((?, ?), (?, ?)).
// Dialects without row-value support override this with an OR-of-ANDs chain.
func (f flavor) MultiValueIn(columns []string, rows int, nextArg func() string) (string, error) {
	return rowValueIn(columns, rows, nextArg)
}

func rowValueIn(columns []string, rows int, nextArg func() string) (string, error) {
	if len(columns) == 0 || rows == 0 {
		return "", fmt.Errorf("dialect: multi-value IN requires at least one column and one row")
	}
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") IN (")
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(nextArg())
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String(), nil
}

func disjunctionIn(columns []string, rows int, nextArg func() string) (string, error) {
	if len(columns) == 0 || rows == 0 {
		return "", fmt.Errorf("dialect: multi-value IN requires at least one column and one row")
	}
	var b strings.Builder
	b.WriteString("(")
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("(")
		for c, col := range columns {
			if c > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(col)
			b.WriteString(" = ")
			b.WriteString(nextArg())
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String(), nil
}

type postgres struct{ flavor }

func (postgres) Placeholder(position int) string { return "$" + strconv.Itoa(position) }

// Postgres forbids aliasing the UPDATE target before the SET clause.
func (postgres) SupportsUpdateAlias() bool { return false }

type mysql struct{ flavor }

func (mysql) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysql) SupportsFullJoin() bool { return false }

func (mysql) CommentPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{blockComment, lineComment, hashComment}
}

func (mysql) LiteralPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{sqlString, backQuoted}
}

type sqlite struct{ flavor }

func (sqlite) SupportsUpdateAlias() bool { return false }

// SQLite understands double-quoted and back-quoted identifiers alike.
func (sqlite) LiteralPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{sqlString, doubleQuoted, backQuoted}
}

// NewFlavor returns the Flavor for the named dialect. Unknown names fall back
// to portable double-quoted SQL with ? placeholders, which lets tests and
// exotic drivers run without registering a flavor first.
func NewFlavor(name string) Flavor {
	switch name {
	case Postgres:
		return postgres{flavor{Postgres}}
	case MySQL:
		return mysql{flavor{MySQL}}
	case SQLite:
		return sqlite{flavor{SQLite}}
	default:
		return flavor{name}
	}
}

// QuoteQualified quotes a possibly schema-qualified identifier part by part.
func QuoteQualified(f Flavor, ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = f.Quote(p)
	}
	return strings.Join(parts, ".")
}
