// Package schema reflects plain Go structs into the entity descriptors the
// query compiler and row mapper run on.
//
// A record is any named struct; an entity is a record with a primary key.
// Field roles come from the `db` struct tag:
//
//	type Customer struct {
//	    ID    int64  `db:"id,pk,auto"`
//	    Name  string `db:"name"`
//	    Tier  Tier   `db:"tier,enum=name"`
//	}
//
//	type Order struct {
//	    ID       int64                `db:"id,pk,auto"`
//	    Customer Customer             `db:",fk"`
//	    Invoice  schema.Ref[Invoice]  `db:",fk"`
//	    Billing  Address              `db:",inline"`
//	    Amount   int64                `db:"amount"`
//	    Revision int64                `db:"revision,version"`
//	}
//
// Tag grammar: `db:"column[|column...][,option...]"`. The name part is an
// explicit column override ('|'-separated for multi-column fields such as
// compound keys); an empty name falls through to the pluggable naming
// strategy. Options:
//
//   - pk       primary key (at most one per type, top level only)
//   - fk       foreign key to another record, held directly or via Ref
//   - inline   embedded record whose columns belong to the parent table
//   - version  optimistic-locking version column
//   - auto     database-generated value
//   - escape   quote the column name as a dialect identifier
//   - enum=name | enum=ordinal   enum encoding for string/integer kinds
//   - convert=NAME               registered Converter spanning its columns
//
// `db:"-"` skips a field. Untagged exported fields map through the naming
// strategy; unexported fields are ignored. Anonymous embedded records map
// inline unless tagged otherwise.
//
// Nullability is structural: pointer-typed fields and Ref fields admit SQL
// NULL, value-typed fields are required. Nullable foreign keys turn derived
// joins into LEFT joins.
//
// # Descriptors
//
// TypeOf builds a Type descriptor once per Go type and caches it. The
// descriptor exposes the ordered field list, the primary key and its
// nested/compound components, the recursive foreign-key and version lookups,
// and the view-query override for query-backed projections (ViewQuerier).
//
// # Naming
//
// Names resolves physical table and column names, caching per descriptor.
// The zero value applies the snake-case defaults: pluralized snake-case
// tables (OrderLine -> order_lines), snake-case columns, and foreign keys
// joined with the referenced key column (Customer -> customer_id). All three
// strategies are replaceable functions. TableNamer and SchemaNamer let a
// type override its own physical name.
//
// # Validation
//
// Validate runs the structural pass (key-role combinations) and the graph
// pass (cycle detection over nested records, reported with the full type
// path) selected by Mode. Results are memoized per (type, mode), failures
// included, so a broken declaration fails identically on every use.
package schema
