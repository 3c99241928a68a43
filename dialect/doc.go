// Package dialect provides the database abstraction consumed by weft.
//
// It defines two independent contracts:
//
//   - Driver / Tx / ExecQuerier: the execution surface over a concrete
//     database connection. dialect/sql implements it for database/sql.
//   - Flavor: the SQL text conventions of one database (identifier quoting,
//     placeholder syntax, comment and literal lexemes, multi-column IN
//     encoding). The template compiler consumes a Flavor as a black box.
//
// # Supported Dialects
//
// Built-in flavors exist for the three dialect constants:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Usage
//
//	import (
//	    "github.com/syssam/weft/dialect"
//	    "github.com/syssam/weft/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// Wrapping a driver with logging:
//
//	drv = dialect.Debug(drv)
package dialect
