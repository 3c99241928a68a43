package rowmap_test

import (
	"testing"
	"time"

	"github.com/syssam/weft/rowmap"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRecords(t *testing.T) {
	t.Run("entity_with_nested_record", func(t *testing.T) {
		got, err := rowmap.Scan[Order]([]any{int64(1), int64(42), "ACME", int64(1200), int64(3)}, nil)
		require.NoError(t, err)
		assert.Equal(t, Order{
			ID:       1,
			Customer: Customer{ID: 42, Name: "ACME"},
			Amount:   1200,
			Revision: 3,
		}, got)
	})

	t.Run("numeric_widening", func(t *testing.T) {
		// Drivers disagree on integer width; the plan converts.
		got, err := rowmap.Scan[Customer]([]any{int32(7), []byte("ACME")}, nil)
		require.NoError(t, err)
		assert.Equal(t, Customer{ID: 7, Name: "ACME"}, got)
	})

	t.Run("inline_record_shares_the_row_span", func(t *testing.T) {
		got, err := rowmap.Scan[Product]([]any{int64(3), "Widget", "alice", "bob"}, nil)
		require.NoError(t, err)
		assert.Equal(t, Product{ID: 3, Name: "Widget", Audit: Audit{CreatedBy: "alice", UpdatedBy: "bob"}}, got)
	})

	t.Run("compound_key", func(t *testing.T) {
		got, err := rowmap.Scan[OrderLine]([]any{int64(7), int64(2), "bolt"}, nil)
		require.NoError(t, err)
		assert.Equal(t, OrderLine{Key: LineKey{OrderID: 7, Seq: 2}, Item: "bolt"}, got)
	})

	t.Run("column_count_mismatch", func(t *testing.T) {
		_, err := rowmap.Scan[Customer]([]any{int64(1)}, nil)
		require.Error(t, err)
		assert.True(t, rowmap.IsDataError(err))
		assert.Contains(t, err.Error(), "plan consumes 2")
	})
}

func TestScanNulls(t *testing.T) {
	t.Run("nullable_record_span_collapses", func(t *testing.T) {
		got, err := rowmap.Scan[Shipment]([]any{
			int64(9), nil, nil, int64(1), int64(42), "ACME", int64(100), int64(0),
		}, nil)
		require.NoError(t, err)
		assert.Nil(t, got.Carrier)
		assert.Equal(t, int64(42), got.Order.Customer.ID)
	})

	t.Run("null_key_in_a_required_record", func(t *testing.T) {
		_, err := rowmap.Scan[Order]([]any{int64(1), nil, "ACME", int64(100), int64(0)}, nil)
		require.Error(t, err)
		assert.True(t, rowmap.IsDataError(err))
		assert.Contains(t, err.Error(), "Customer.ID")
		assert.Contains(t, err.Error(), "key position")
	})

	t.Run("null_in_a_non_nullable_column", func(t *testing.T) {
		_, err := rowmap.Scan[Customer]([]any{int64(1), nil}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-nullable")
	})

	t.Run("nullable_pointer_leaf", func(t *testing.T) {
		got, err := rowmap.Scan[Note]([]any{int64(1), nil}, nil)
		require.NoError(t, err)
		assert.Nil(t, got.Text)

		got, err = rowmap.Scan[Note]([]any{int64(2), "hello"}, nil)
		require.NoError(t, err)
		require.NotNil(t, got.Text)
		assert.Equal(t, "hello", *got.Text)
	})
}

func TestScanRefs(t *testing.T) {
	t.Run("key_column_builds_the_reference", func(t *testing.T) {
		got, err := rowmap.Scan[Invoice]([]any{int64(5), int64(7), "INV-1"}, nil)
		require.NoError(t, err)
		assert.True(t, got.Order.Valid())
		assert.Equal(t, int64(7), got.Order.Key())
	})

	t.Run("null_key_yields_the_zero_ref", func(t *testing.T) {
		got, err := rowmap.Scan[Invoice]([]any{int64(5), nil, "INV-2"}, nil)
		require.NoError(t, err)
		assert.False(t, got.Order.Valid())
	})

	t.Run("narrow_key_column_widens", func(t *testing.T) {
		got, err := rowmap.Scan[Invoice]([]any{int64(5), int32(7), "INV-3"}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Order.Key(), "scanned keys match constructed ones")
	})
}

func TestScanEnumsAndConverters(t *testing.T) {
	t.Run("name_enum_and_converter", func(t *testing.T) {
		got, err := rowmap.Scan[Ticket]([]any{int64(4), []byte("open"), int64(1500), "EUR"}, nil)
		require.NoError(t, err)
		assert.Equal(t, TicketOpen, got.State)
		assert.Equal(t, Money{Cents: 1500, Currency: "EUR"}, got.Price)
	})

	t.Run("ordinal_enum_from_integer", func(t *testing.T) {
		got, err := rowmap.Scan[Task]([]any{int64(1), int64(2)}, nil)
		require.NoError(t, err)
		assert.Equal(t, Priority(2), got.Priority)
	})

	t.Run("ordinal_enum_from_numeric_string", func(t *testing.T) {
		got, err := rowmap.Scan[Task]([]any{int64(1), "2"}, nil)
		require.NoError(t, err)
		assert.Equal(t, Priority(2), got.Priority)
	})

	t.Run("ordinal_enum_rejects_text", func(t *testing.T) {
		_, err := rowmap.Scan[Task]([]any{int64(1), "high"}, nil)
		require.Error(t, err)
		assert.True(t, rowmap.IsDataError(err))
		assert.Contains(t, err.Error(), `invalid ordinal-enum encoding "high"`)
	})

	t.Run("converter_null_span", func(t *testing.T) {
		_, err := rowmap.Scan[Ticket]([]any{int64(4), "open", nil, nil}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-nullable")
	})
}

func TestScanUUIDKeys(t *testing.T) {
	id := uuid.New()

	t.Run("from_text", func(t *testing.T) {
		got, err := rowmap.Scan[Asset]([]any{id.String(), "disk"}, nil)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("from_raw_bytes", func(t *testing.T) {
		raw := make([]byte, 16)
		copy(raw, id[:])
		got, err := rowmap.Scan[Asset]([]any{raw, "disk"}, nil)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := rowmap.Scan[Asset]([]any{"not-a-uuid", "disk"}, nil)
		require.Error(t, err)
		assert.True(t, rowmap.IsDataError(err))
	})
}

func TestScanTime(t *testing.T) {
	t.Run("native", func(t *testing.T) {
		at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		got, err := rowmap.Scan[Event]([]any{int64(1), at}, nil)
		require.NoError(t, err)
		assert.True(t, at.Equal(got.At))
	})

	t.Run("text", func(t *testing.T) {
		got, err := rowmap.Scan[Event]([]any{int64(1), "2024-03-01 10:00:00"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2024, got.At.Year())
		assert.Equal(t, time.March, got.At.Month())
	})
}
