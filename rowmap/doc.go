// Package rowmap builds record instances from flat result rows.
//
// A scan plan is compiled once per record type and cached: one step per
// field, each step consuming a fixed number of columns (a converter its
// declared column count, a nested record its own flattened span, a lazy
// reference the referenced key's columns, anything else one). A plan
// applies to a result shape only when the column count matches its arity
// exactly; applicability is a query, not an error.
//
// Scanning runs the steps left to right over a column cursor. Nested
// records recurse into their sub-plans, nullable records whose whole span
// is NULL collapse to their zero value, and entities are deduplicated
// through an Interner so join fan-out yields one instance per key within
// a scope.
package rowmap
