package compiler

import (
	"regexp"

	"github.com/syssam/weft/dialect"
)

// Op classifies the primary operation of a statement.
type Op uint8

const (
	OpUndefined Op = iota
	OpSelect
	OpInsert
	OpUpdate
	OpDelete
)

var opNames = [...]string{"UNDEFINED", "SELECT", "INSERT", "UPDATE", "DELETE"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return opNames[OpUndefined]
}

var (
	selectPattern = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	insertPattern = regexp.MustCompile(`(?i)^\s*INSERT\b`)
	updatePattern = regexp.MustCompile(`(?i)^\s*UPDATE\b`)
	deletePattern = regexp.MustCompile(`(?i)^\s*DELETE\b`)
	withPattern   = regexp.MustCompile(`(?i)^\s*WITH\b(\s+RECURSIVE\b)?`)
	wherePattern  = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// Classify determines the statement operation from its literal SQL text.
// The leading keyword is matched case-insensitively; when nothing matches,
// comments are stripped and the match retried, and a leading WITH clause is
// skipped over its balanced CTE bodies before retrying on the remainder.
// Text that still matches nothing classifies as OpUndefined, which the
// compiler treats as a SELECT-shaped statement.
func Classify(sqlText string, f dialect.Flavor) Op {
	if op := matchOp(sqlText); op != OpUndefined {
		return op
	}
	s := stripComments(sqlText, f)
	for {
		if op := matchOp(s); op != OpUndefined {
			return op
		}
		rest, ok := skipWith(s)
		if !ok {
			return OpUndefined
		}
		s = rest
	}
}

func matchOp(s string) Op {
	switch {
	case selectPattern.MatchString(s):
		return OpSelect
	case insertPattern.MatchString(s):
		return OpInsert
	case updatePattern.MatchString(s):
		return OpUpdate
	case deletePattern.MatchString(s):
		return OpDelete
	}
	return OpUndefined
}

func stripComments(s string, f dialect.Flavor) string {
	for _, re := range f.CommentPatterns() {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// skipWith advances past a leading WITH clause: one or more `name AS (body)`
// common-table definitions separated by commas. Bodies are skipped by
// parenthesis depth alone; no grammar beyond balance is assumed, so nested
// subqueries and row constructors inside a CTE are crossed safely.
func skipWith(s string) (string, bool) {
	loc := withPattern.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	i := loc[1]
	for {
		depth, opened := 0, false
	body:
		for ; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
				opened = true
			case ')':
				depth--
				if opened && depth == 0 {
					i++
					break body
				}
			}
		}
		if !opened || depth != 0 {
			return "", false
		}
		j := i
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j < len(s) && s[j] == ',' {
			i = j + 1
			continue
		}
		return s[j:], true
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// HasWhereClause reports whether sqlText contains a WHERE keyword outside
// comments, string literals and quoted identifiers. Literal spans are
// neutralized before the search so that a WHERE inside a string or a
// quoted column name does not count.
func HasWhereClause(sqlText string, f dialect.Flavor) bool {
	s := stripComments(sqlText, f)
	for _, re := range f.LiteralPatterns() {
		s = re.ReplaceAllString(s, "_")
	}
	return wherePattern.MatchString(s)
}
