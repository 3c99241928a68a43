// Package sql glues the weft engine to database/sql based drivers.
//
// It implements dialect.Driver on top of *sql.DB and *sql.Tx, so any driver
// registered with database/sql (lib/pq, go-sql-driver/mysql, modernc.org/sqlite)
// can back a weft engine:
//
//	import (
//	    "github.com/syssam/weft"
//	    "github.com/syssam/weft/dialect"
//	    dsql "github.com/syssam/weft/dialect/sql"
//
//	    _ "github.com/lib/pq"
//	)
//
//	drv, err := dsql.Open(dialect.Postgres, "postgres://localhost/app?sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	engine := weft.New(drv)
//
// # Result Streaming
//
// Query results are exposed through Rows, a thin wrapper over *sql.Rows.
// Rows.WithCloser attaches a release hook that runs when the stream is
// closed; the engine uses it to tie per-query resources to the cursor
// lifetime.
//
// # Statistics
//
// StatsDriver decorates a Driver with counters and slow query detection:
//
//	drv, stats, err := dsql.OpenWithStats(dialect.Postgres, dsn,
//	    dsql.WithSlowThreshold(200*time.Millisecond),
//	    dsql.WithSlowQueryLog(),
//	)
//
// The snapshot returned by stats.Stats() is safe to read concurrently with
// running queries.
package sql
