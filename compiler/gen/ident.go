package gen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// initialisms keeps common database abbreviations in their conventional
// Go spelling when column names become identifiers.
var initialisms = map[string]string{
	"id":   "ID",
	"uid":  "UID",
	"uuid": "UUID",
	"url":  "URL",
	"api":  "API",
	"sql":  "SQL",
	"ip":   "IP",
}

// exportedIdent derives an exported Go identifier from a column name:
// "customer_id" becomes "CustomerID". Runs of non-alphanumeric characters
// separate words, so quoted or schema-qualified names stay legal
// identifiers.
func exportedIdent(column string) string {
	parts := strings.FieldsFunc(column, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	var b strings.Builder
	for _, p := range parts {
		if init, ok := initialisms[strings.ToLower(p)]; ok {
			b.WriteString(init)
			continue
		}
		b.WriteString(titleCaser.String(strings.ToLower(p)))
	}
	return b.String()
}

// packageName derives the generated package name from an entity name:
// "OrderLine" becomes "orderline", following the usual one-word lowercase
// package convention.
func packageName(entity string) string {
	return strings.ToLower(entity)
}
