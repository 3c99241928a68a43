package compiler_test

import (
	"reflect"
	"testing"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPrepare(t *testing.T, tmpl compiler.Template, cfg compiler.Config) *compiler.Statement {
	t.Helper()
	stmt, err := compiler.Prepare(tmpl, cfg)
	require.NoError(t, err)
	return stmt
}

var (
	orderToken    = compiler.Token(reflect.TypeOf(Order{}))
	customerToken = compiler.Token(reflect.TypeOf(Customer{}))
	shipmentToken = compiler.Token(reflect.TypeOf(Shipment{}))
	invoiceToken  = compiler.Token(reflect.TypeOf(Invoice{}))
	productToken  = compiler.Token(reflect.TypeOf(Product{}))
	lineToken     = compiler.Token(reflect.TypeOf(OrderLine{}))
	ticketToken   = compiler.Token(reflect.TypeOf(Ticket{}))
	allocToken    = compiler.Token(reflect.TypeOf(Allocation{}))
)

func TestSelectAutoJoin(t *testing.T) {
	t.Run("record_fk_joins_and_expands", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", orderToken, orderToken), testConfig())
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM orders o INNER JOIN customers c ON o.customer_id = c.id",
			stmt.SQL)
		assert.Equal(t, compiler.OpSelect, stmt.Op)
		assert.Empty(t, stmt.Args())
	})

	t.Run("nested_nullable_outer_last", func(t *testing.T) {
		// Carrier is a nullable edge, Order and its Customer are required.
		// Outer joins sort after inner joins; the select list keeps field
		// order and uniquifies the colliding Carrier/Customer aliases.
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", shipmentToken, shipmentToken), testConfig())
		assert.Equal(t,
			"SELECT s.id, c.id, c.name, o.id, c2.id, c2.name, o.amount, o.revision "+
				"FROM shipments s "+
				"INNER JOIN orders o ON s.order_id = o.id "+
				"INNER JOIN customers c2 ON o.customer_id = c2.id "+
				"LEFT JOIN carriers c ON s.carrier_id = c.id",
			stmt.SQL)
	})

	t.Run("nullable_ancestor_keeps_descendants_left", func(t *testing.T) {
		// Warehouse.Region is a required edge, but it hangs off the
		// nullable Allocation.Warehouse: a missing warehouse row must not
		// drop the allocation, so the region join stays LEFT too.
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", allocToken, allocToken), testConfig())
		assert.Equal(t,
			"SELECT a.id, w.id, r.id, r.name, a.qty "+
				"FROM allocations a "+
				"LEFT JOIN warehouses w ON a.warehouse_id = w.id "+
				"LEFT JOIN regions r ON w.region_id = r.id",
			stmt.SQL)
	})

	t.Run("lazy_reference_joins_nothing", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", invoiceToken, invoiceToken), testConfig())
		assert.Equal(t, "SELECT i.id, i.order_id, i.number FROM invoices i", stmt.SQL)
	})

	t.Run("inline_record_stays_on_the_root_alias", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", productToken, productToken), testConfig())
		assert.Equal(t, "SELECT p.id, p.name, p.created_by, p.updated_by FROM products p", stmt.SQL)
	})

	t.Run("selecting_a_reference_target_joins_it_inner", func(t *testing.T) {
		// The Order behind Invoice.Order is joined on demand; selecting it
		// asserts the rows exist, so the nullable reference edge compiles
		// to an INNER join.
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {}", orderToken, invoiceToken), testConfig())
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM invoices i "+
				"INNER JOIN orders o ON i.order_id = o.id "+
				"INNER JOIN customers c ON o.customer_id = c.id",
			stmt.SQL)
	})

	t.Run("explicit_alias_from_the_text", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT ord.amount FROM {} ord WHERE ord.id = {}", orderToken, int64(7)), testConfig())
		assert.Equal(t,
			"SELECT ord.amount FROM orders ord INNER JOIN customers c ON ord.customer_id = c.id WHERE ord.id = ?",
			stmt.SQL)
		assert.Equal(t, []any{int64(7)}, stmt.Args())
	})

	t.Run("alias_reference", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT {}.amount FROM {}", orderToken, orderToken), testConfig())
		assert.Equal(t,
			"SELECT o.amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id",
			stmt.SQL)
	})

	t.Run("metamodel_path_column", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {} ORDER BY {}",
			orderToken, orderToken, compiler.NewPath(reflect.TypeOf(Order{}), "Customer.Name")), testConfig())
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM orders o INNER JOIN customers c ON o.customer_id = c.id "+
				"ORDER BY c.name",
			stmt.SQL)
	})

	t.Run("comma_separated_sources", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT p.name, ol.item FROM {} p, {} ol WHERE ol.order_id = {}",
			productToken, lineToken, int64(3)), testConfig())
		assert.Equal(t,
			"SELECT p.name, ol.item FROM products p, order_lines ol WHERE ol.order_id = ?",
			stmt.SQL)
		assert.Equal(t, []any{int64(3)}, stmt.Args())
	})

	t.Run("auto_join_disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.DisableAutoJoin = true
		customer := Customer{ID: 42}
		stmt := mustPrepare(t, compiler.New("SELECT o.id FROM {} WHERE {}", orderToken, customer), cfg)
		assert.Equal(t, "SELECT o.id FROM orders o WHERE o.customer_id = ?", stmt.SQL)
		assert.Equal(t, []any{int64(42)}, stmt.Args())
	})
}

func TestWherePredicates(t *testing.T) {
	t.Run("record_resolves_to_the_referencing_columns", func(t *testing.T) {
		// The customer value compares against orders.customer_id, not
		// customers.id: the foreign-key mapping wins.
		customer := Customer{ID: 42, Name: "ACME"}
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {} WHERE {}", orderToken, orderToken, customer), testConfig())
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM orders o INNER JOIN customers c ON o.customer_id = c.id "+
				"WHERE o.customer_id = ?",
			stmt.SQL)
		assert.Equal(t, []any{int64(42)}, stmt.Args())
	})

	t.Run("root_record_resolves_to_its_primary_key", func(t *testing.T) {
		order := Order{ID: 9, Customer: Customer{ID: 1}, Revision: 3}
		stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE {}", orderToken, order), testConfig())
		assert.Equal(t, "SELECT amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id WHERE o.id = ?", stmt.SQL)
		// No version pin outside update/delete.
		assert.Equal(t, []any{int64(9)}, stmt.Args())
		assert.False(t, stmt.VersionAware)
	})

	t.Run("bare_scalar_matches_the_root_key", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE {}", orderToken, int64(7)), testConfig())
		assert.Contains(t, stmt.SQL, "WHERE o.id = ?")
		assert.Equal(t, []any{int64(7)}, stmt.Args())
	})

	t.Run("bare_scalar_of_the_wrong_kind", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("SELECT amount FROM {} WHERE {}", orderToken, "seven"), testConfig())
		require.Error(t, err)
		assert.True(t, compiler.IsTemplateError(err))
		assert.Contains(t, err.Error(), "specify a metamodel path")
	})

	t.Run("slice_becomes_an_in_list", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE {}", orderToken, []int64{1, 2, 3}), testConfig())
		assert.Contains(t, stmt.SQL, "WHERE o.id IN (?, ?, ?)")
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, stmt.Args())
	})

	t.Run("reference_value_compares_by_key", func(t *testing.T) {
		ref := schema.RefTo[Order](7)
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {} WHERE {}", invoiceToken, invoiceToken, ref), testConfig())
		assert.Equal(t, "SELECT i.id, i.order_id, i.number FROM invoices i WHERE i.order_id = ?", stmt.SQL)
		assert.Equal(t, []any{7}, stmt.Args())
	})

	t.Run("scalar_after_an_operator_binds_as_a_parameter", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE amount > {}", orderToken, int64(100)), testConfig())
		assert.Contains(t, stmt.SQL, "WHERE amount > ?")
		assert.Equal(t, []any{int64(100)}, stmt.Args())
	})

	t.Run("parenthesized_text_shields_the_clause_state", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New(
			"DELETE FROM archive WHERE id IN (SELECT id FROM {})", orderToken), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected type Order in the WHERE clause")
	})
}

func TestInsert(t *testing.T) {
	t.Run("single_record", func(t *testing.T) {
		order := Order{Customer: Customer{ID: 5}, Amount: 1200}
		stmt := mustPrepare(t, compiler.New("INSERT INTO {} VALUES {}", orderToken, order), testConfig())
		assert.Equal(t, "INSERT INTO orders (customer_id, amount, revision) VALUES (?, ?, ?)", stmt.SQL)
		assert.Equal(t, []any{int64(5), int64(1200), int64(0)}, stmt.Args())
		assert.Equal(t, compiler.OpInsert, stmt.Op)
		assert.Equal(t, []string{"id"}, stmt.GeneratedKeys, "the auto key is reported back")
	})

	t.Run("batch", func(t *testing.T) {
		orders := []Order{
			{Customer: Customer{ID: 5}, Amount: 100},
			{Customer: Customer{ID: 6}, Amount: 200},
		}
		stmt := mustPrepare(t, compiler.New("INSERT INTO {} VALUES {}", orderToken, orders), testConfig())
		assert.Equal(t, "INSERT INTO orders (customer_id, amount, revision) VALUES (?, ?, ?), (?, ?, ?)", stmt.SQL)
		assert.Equal(t, []any{int64(5), int64(100), int64(0), int64(6), int64(200), int64(0)}, stmt.Args())
	})

	t.Run("converter_and_enum_columns", func(t *testing.T) {
		ticket := Ticket{State: TicketOpen, Price: Money{Cents: 1500, Currency: "EUR"}}
		stmt := mustPrepare(t, compiler.New("INSERT INTO {} VALUES {}", ticketToken, ticket), testConfig())
		assert.Equal(t, "INSERT INTO tickets (state, price_cents, price_currency) VALUES (?, ?, ?)", stmt.SQL)
		assert.Equal(t, []any{"open", int64(1500), "EUR"}, stmt.Args())
	})

	t.Run("unset_required_key_is_rejected", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("INSERT INTO {} VALUES {}", orderToken, Order{Amount: 10}), testConfig())
		require.Error(t, err)
		assert.True(t, compiler.IsValueError(err))
	})

	t.Run("empty_batch_is_rejected", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("INSERT INTO {} VALUES {}", orderToken, []Order{}), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty batch")
	})
}

func TestUpdate(t *testing.T) {
	order := Order{ID: 9, Customer: Customer{ID: 5}, Amount: 1500, Revision: 3}

	t.Run("set_record_bumps_the_version", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("UPDATE {} SET {} WHERE {}", orderToken, order, order), testConfig())
		assert.Equal(t,
			"UPDATE orders o SET o.customer_id = ?, o.amount = ?, o.revision = o.revision + 1 "+
				"WHERE o.id = ? AND o.revision = ?",
			stmt.SQL)
		assert.Equal(t, []any{int64(5), int64(1500), int64(9), int64(3)}, stmt.Args())
		assert.True(t, stmt.VersionAware)
		assert.Empty(t, stmt.Unsafe)
	})

	t.Run("no_update_alias_on_postgres", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("UPDATE {} SET {} WHERE {}", orderToken, order, order), pgConfig())
		assert.Equal(t,
			"UPDATE orders SET customer_id = $1, amount = $2, revision = revision + 1 "+
				"WHERE id = $3 AND revision = $4",
			stmt.SQL)
		assert.Equal(t, []any{int64(5), int64(1500), int64(9), int64(3)}, stmt.Args())
	})

	t.Run("without_where_carries_the_advisory", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("UPDATE {} SET amount = 0", orderToken), testConfig())
		assert.Equal(t, "UPDATE orders o SET amount = 0", stmt.SQL)
		assert.Contains(t, stmt.Unsafe, "affects every row")
	})

	t.Run("safe_mode_rejects_it", func(t *testing.T) {
		cfg := testConfig()
		cfg.SafeMode = true
		_, err := compiler.Prepare(compiler.New("UPDATE {} SET amount = 0", orderToken), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsafe statement")
	})
}

func TestDelete(t *testing.T) {
	t.Run("by_record_pins_the_version", func(t *testing.T) {
		order := Order{ID: 4, Customer: Customer{ID: 5}, Revision: 6}
		stmt := mustPrepare(t, compiler.New("DELETE FROM {} WHERE {}", orderToken, order), testConfig())
		assert.Equal(t, "DELETE FROM orders WHERE id = ? AND revision = ?", stmt.SQL)
		assert.Equal(t, []any{int64(4), int64(6)}, stmt.Args())
		assert.True(t, stmt.VersionAware)
	})

	t.Run("by_foreign_key_record", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("DELETE FROM {} WHERE {}", orderToken, Customer{ID: 42}), testConfig())
		assert.Equal(t, "DELETE FROM orders WHERE customer_id = ?", stmt.SQL)
		assert.Equal(t, []any{int64(42)}, stmt.Args())
	})

	t.Run("compound_key_record", func(t *testing.T) {
		line := OrderLine{Key: LineKey{OrderID: 7, Seq: 2}, Item: "bolt"}
		stmt := mustPrepare(t, compiler.New("DELETE FROM {} WHERE {}", lineToken, line), testConfig())
		assert.Equal(t, "DELETE FROM order_lines WHERE (order_id = ? AND seq = ?)", stmt.SQL)
		assert.Equal(t, []any{int64(7), 2}, stmt.Args())
	})

	t.Run("without_where_carries_the_advisory", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("DELETE FROM {}", orderToken), testConfig())
		assert.Equal(t, "DELETE FROM orders", stmt.SQL)
		assert.Contains(t, stmt.Unsafe, "DELETE without a WHERE clause")
		assert.Equal(t, compiler.OpDelete, stmt.Op)
	})

	t.Run("safe_mode_rejects_it", func(t *testing.T) {
		cfg := testConfig()
		cfg.SafeMode = true
		_, err := compiler.Prepare(compiler.New("DELETE FROM {}", orderToken), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsafe statement")
	})
}

func TestExplicitJoinsAndTables(t *testing.T) {
	t.Run("join_element_with_template_condition", func(t *testing.T) {
		join := compiler.NewJoin(compiler.InnerJoin, invoiceToken, "i",
			compiler.New("i.order_id = {}.id", orderToken))
		stmt := mustPrepare(t, compiler.New("SELECT i.number FROM {} {} WHERE i.number LIKE {}",
			orderToken, join, "INV-%"), testConfig())
		assert.Equal(t,
			"SELECT i.number FROM orders o "+
				"INNER JOIN customers c ON o.customer_id = c.id "+
				"INNER JOIN invoices i ON i.order_id = o.id "+
				"WHERE i.number LIKE ?",
			stmt.SQL)
		assert.Equal(t, []any{"INV-%"}, stmt.Args())
	})

	t.Run("table_token_after_join_keyword_renders_in_place", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New(
			"SELECT o.id FROM {} CROSS JOIN {} lines WHERE lines.order_id = o.id",
			orderToken, lineToken), testConfig())
		assert.Equal(t,
			"SELECT o.id FROM orders o "+
				"INNER JOIN customers c ON o.customer_id = c.id "+
				"CROSS JOIN order_lines lines WHERE lines.order_id = o.id",
			stmt.SQL)
	})
}

func TestSubqueries(t *testing.T) {
	t.Run("derived_table", func(t *testing.T) {
		// The subquery is a statement of its own: its root derives the
		// same joins a standalone SELECT over Order would.
		sub := compiler.New("SELECT SUM(amount) AS total FROM {}", orderToken)
		stmt := mustPrepare(t, compiler.New("SELECT t.total FROM {} t", sub), testConfig())
		assert.Equal(t,
			"SELECT t.total FROM (SELECT SUM(amount) AS total FROM orders o "+
				"INNER JOIN customers c ON o.customer_id = c.id) t",
			stmt.SQL)
	})

	t.Run("correlated_with_global_numbering", func(t *testing.T) {
		sub := compiler.New("SELECT COUNT(*) FROM {} WHERE order_id = {}.id AND seq > {}",
			lineToken, orderToken, 5)
		stmt := mustPrepare(t, compiler.New("SELECT {} FROM {} WHERE amount > {} AND {} > {}",
			orderToken, orderToken, int64(50), sub, int64(2)), pgConfig())
		assert.Equal(t,
			"SELECT o.id, c.id, c.name, o.amount, o.revision "+
				"FROM orders o INNER JOIN customers c ON o.customer_id = c.id "+
				"WHERE amount > $1 AND "+
				"(SELECT COUNT(*) FROM order_lines ol WHERE order_id = o.id AND seq > $2) > $3",
			stmt.SQL)
		assert.Equal(t, []any{int64(50), 5, int64(2)}, stmt.Args())
	})
}

func TestStatementShapeErrors(t *testing.T) {
	t.Run("two_primary_elements", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("INSERT INTO {} SELECT {} FROM archive",
			orderToken, orderToken), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple primary statement elements")
	})

	t.Run("placeholder_count_mismatch", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("SELECT {} FROM {}", orderToken), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declares 2 placeholders but received 1")
	})

	t.Run("records_disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.DisableRecords = true
		_, err := compiler.Prepare(compiler.New("SELECT amount FROM {} WHERE {}",
			orderToken, Customer{ID: 1}), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record values are disabled")
	})

	t.Run("no_flavor", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("SELECT 1"), compiler.Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no dialect flavor")
	})
}

func TestNamedParameters(t *testing.T) {
	t.Run("emitted_positionally", func(t *testing.T) {
		stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE amount > {} OR amount < {}",
			orderToken, compiler.NewNamed("limit", int64(100)), compiler.NewNamed("limit", int64(100))), testConfig())
		assert.Contains(t, stmt.SQL, "WHERE amount > ? OR amount < ?")
		assert.Equal(t, []any{int64(100), int64(100)}, stmt.Args())
		assert.Equal(t, "limit", stmt.Params[0].Name)
	})

	t.Run("conflicting_values_are_rejected", func(t *testing.T) {
		_, err := compiler.Prepare(compiler.New("SELECT amount FROM {} WHERE amount > {} OR amount < {}",
			orderToken, compiler.NewNamed("limit", int64(100)), compiler.NewNamed("limit", int64(200))), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `parameter "limit" bound to conflicting values`)
	})
}

func TestUnsafeElement(t *testing.T) {
	stmt := mustPrepare(t, compiler.New("SELECT amount FROM {} WHERE {} {}",
		orderToken, int64(3), compiler.NewUnsafe("ORDER BY amount DESC")), testConfig())
	assert.Contains(t, stmt.SQL, "WHERE o.id = ? ORDER BY amount DESC")

	// Raw SQL takes part in statement classification.
	raw := mustPrepare(t, compiler.New("{}", compiler.NewUnsafe("DELETE FROM orders")), testConfig())
	assert.Equal(t, compiler.OpDelete, raw.Op)
	assert.Equal(t, "DELETE FROM orders", raw.SQL)
	assert.Contains(t, raw.Unsafe, "affects every row")
}
