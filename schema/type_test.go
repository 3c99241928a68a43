package schema_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/syssam/weft/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shared fixtures for the schema tests.

type Tier string

type Customer struct {
	ID   int64  `db:"id,pk,auto"`
	Name string `db:"name"`
	Tier Tier   `db:"tier,enum=name"`
}

type Region struct {
	ID   int64  `db:"id,pk"`
	Code string `db:"code"`
}

type Address struct {
	Street string             `db:"street"`
	City   string             `db:"city"`
	Region schema.Ref[Region] `db:",fk"`
}

type Invoice struct {
	ID     int64  `db:"id,pk"`
	Number string `db:"number"`
}

type Order struct {
	ID       int64               `db:"id,pk,auto"`
	Customer Customer            `db:",fk"`
	Invoice  schema.Ref[Invoice] `db:",fk"`
	Billing  Address             `db:",inline"`
	Amount   int64               `db:"amount"`
	Revision int64               `db:"revision,version"`
	Internal string              `db:"-"`
	hidden   string
}

type Shipment struct {
	ID    int64  `db:"id,pk"`
	Order *Order `db:",fk"`
}

type LineKey struct {
	OrderID int64 `db:"order_id"`
	Seq     int   `db:"seq"`
}

type OrderLine struct {
	Key  LineKey `db:",pk"`
	Item string  `db:"item"`
}

type Audited struct {
	UpdatedBy string `db:"updated_by"`
	Revision  int64  `db:"revision,version"`
}

type Product struct {
	ID    int64   `db:"id,pk"`
	Audit Audited `db:",inline"`
}

type LegacyOrder struct {
	ID int64 `db:"id,pk"`
}

func (LegacyOrder) TableName() string { return "archive.OrderHistory" }

type CustomerSales struct {
	Name  string `db:"name"`
	Total int64  `db:"total"`
}

func (CustomerSales) ViewQuery() string {
	return "SELECT c.name AS name, SUM(o.amount) AS total FROM orders o JOIN customers c ON o.customer_id = c.id GROUP BY c.name"
}

func mustType(t *testing.T, rt reflect.Type) *schema.Type {
	t.Helper()
	tt, err := schema.TypeOf(rt)
	require.NoError(t, err)
	return tt
}

func TestTypeOf(t *testing.T) {
	order := mustType(t, reflect.TypeOf(Order{}))

	t.Run("identity_cached", func(t *testing.T) {
		again, err := schema.TypeOf(reflect.TypeOf(&Order{}))
		require.NoError(t, err)
		assert.Same(t, order, again, "descriptors must be canonical per Go type")

		viaGeneric, err := schema.TypeFor[Order]()
		require.NoError(t, err)
		assert.Same(t, order, viaGeneric)
	})

	t.Run("fields_ordered_and_filtered", func(t *testing.T) {
		names := make([]string, 0, len(order.Fields()))
		for _, f := range order.Fields() {
			names = append(names, f.Name())
		}
		assert.Equal(t, []string{"ID", "Customer", "Invoice", "Billing", "Amount", "Revision"}, names)
		assert.Nil(t, order.Field("Internal"), "db:\"-\" fields are skipped")
		assert.Nil(t, order.Field("hidden"), "unexported fields are skipped")
	})

	t.Run("roles", func(t *testing.T) {
		pk := order.PrimaryKey()
		require.NotNil(t, pk)
		assert.Equal(t, "ID", pk.Name())
		assert.True(t, pk.IsPK())
		assert.True(t, pk.IsAuto())

		fk := order.Field("Customer")
		require.NotNil(t, fk)
		assert.True(t, fk.IsFK())
		assert.False(t, fk.Nullable())
		require.NotNil(t, fk.Record())
		assert.Equal(t, "Customer", fk.Record().Name())
		assert.Same(t, fk.Record(), fk.Target())

		ref := order.Field("Invoice")
		require.NotNil(t, ref)
		assert.True(t, ref.IsFK())
		assert.True(t, ref.Nullable(), "Ref fields admit NULL")
		assert.Nil(t, ref.Record())
		require.NotNil(t, ref.RefTarget())
		assert.Equal(t, "Invoice", ref.RefTarget().Name())

		inline := order.Field("Billing")
		require.NotNil(t, inline)
		assert.True(t, inline.IsInline())
		require.NotNil(t, inline.Record())

		ver := order.Field("Revision")
		require.NotNil(t, ver)
		assert.True(t, ver.IsVersion())
		assert.Same(t, ver, order.Version())

		enum := mustType(t, reflect.TypeOf(Customer{})).Field("Tier")
		require.NotNil(t, enum)
		assert.Equal(t, schema.EnumName, enum.Enum())
	})

	t.Run("nullable_pointer_fk", func(t *testing.T) {
		shipment := mustType(t, reflect.TypeOf(Shipment{}))
		fk := shipment.Field("Order")
		require.NotNil(t, fk)
		assert.True(t, fk.Nullable())
		assert.True(t, fk.IsFK())
	})

	t.Run("entity_vs_projection", func(t *testing.T) {
		assert.True(t, order.IsEntity())
		sales := mustType(t, reflect.TypeOf(CustomerSales{}))
		assert.True(t, sales.IsProjection())
		assert.Contains(t, sales.ViewQuery(), "SELECT")
		assert.Nil(t, sales.PrimaryKey())
	})

	t.Run("errors", func(t *testing.T) {
		type FKOnScalar struct {
			Name string `db:",fk"`
		}
		_, err := schema.TypeOf(reflect.TypeOf(FKOnScalar{}))
		require.Error(t, err)
		assert.True(t, schema.IsStructError(err))
		assert.Contains(t, err.Error(), "fk requires a record or Ref type")

		type RefNoPK struct {
			Addr schema.Ref[Address] `db:",fk"`
		}
		_, err = schema.TypeOf(reflect.TypeOf(RefNoPK{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no primary key")

		type BadTag struct {
			Name string `db:"name,frobnicate"`
		}
		_, err = schema.TypeOf(reflect.TypeOf(BadTag{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tag option")

		_, err = schema.TypeOf(reflect.TypeOf(42))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a struct type")
	})
}

func TestNestedPKFields(t *testing.T) {
	t.Run("scalar_key", func(t *testing.T) {
		order := mustType(t, reflect.TypeOf(Order{}))
		pks := order.NestedPKFields()
		require.Len(t, pks, 1)
		assert.Equal(t, "ID", pks[0].Name())
	})

	t.Run("compound_key_expanded", func(t *testing.T) {
		line := mustType(t, reflect.TypeOf(OrderLine{}))
		pks := line.NestedPKFields()
		require.Len(t, pks, 2)
		assert.Equal(t, "OrderID", pks[0].Name())
		assert.Equal(t, "Seq", pks[1].Name())
	})

	t.Run("fk_as_key_returns_the_fk", func(t *testing.T) {
		type Profile struct {
			Customer Customer `db:",pk,fk"`
			Bio      string   `db:"bio"`
		}
		profile := mustType(t, reflect.TypeOf(Profile{}))
		pks := profile.NestedPKFields()
		require.Len(t, pks, 1)
		assert.Equal(t, "Customer", pks[0].Name())
		assert.True(t, pks[0].IsFK())
	})

	t.Run("projection_has_none", func(t *testing.T) {
		sales := mustType(t, reflect.TypeOf(CustomerSales{}))
		assert.Nil(t, sales.NestedPKFields())
	})
}

func TestForeignKeysRecursive(t *testing.T) {
	order := mustType(t, reflect.TypeOf(Order{}))
	fks := order.ForeignKeys()
	names := make([]string, 0, len(fks))
	for _, f := range fks {
		names = append(names, f.Owner().Name()+"."+f.Name())
	}
	// Customer and Invoice at the top level, Region reached through the
	// inlined Address; foreign keys of referenced tables excluded.
	assert.Equal(t, []string{"Order.Customer", "Order.Invoice", "Address.Region"}, names)
}

func TestVersionRecursive(t *testing.T) {
	product := mustType(t, reflect.TypeOf(Product{}))
	ver := product.Version()
	require.NotNil(t, ver)
	assert.Equal(t, "Revision", ver.Name())
	assert.Equal(t, "Audited", ver.Owner().Name())

	customer := mustType(t, reflect.TypeOf(Customer{}))
	assert.Nil(t, customer.Version())
}

func TestFieldValue(t *testing.T) {
	order := mustType(t, reflect.TypeOf(Order{}))
	o := Order{ID: 7, Amount: 1200}

	id := order.Field("ID").Value(reflect.ValueOf(o))
	assert.Equal(t, int64(7), id.Interface())

	amount := order.Field("Amount").Value(reflect.ValueOf(&o))
	assert.Equal(t, int64(1200), amount.Interface())

	nilInstance := order.Field("ID").Value(reflect.ValueOf((*Order)(nil)))
	assert.False(t, nilInstance.IsValid())
}

func TestIsRecordType(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want bool
	}{
		{"record", reflect.TypeOf(Customer{}), true},
		{"record_pointer", reflect.TypeOf(&Customer{}), true},
		{"time_is_scalar", reflect.TypeOf(time.Time{}), false},
		{"unnamed_struct", reflect.TypeOf(struct{ X int }{}), false},
		{"ref_is_not_record", reflect.TypeOf(schema.Ref[Customer]{}), false},
		{"scalar", reflect.TypeOf(42), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schema.IsRecordType(tt.typ))
		})
	}
}

func TestIsDefault(t *testing.T) {
	assert.True(t, schema.IsDefault(reflect.ValueOf(0)))
	assert.True(t, schema.IsDefault(reflect.Value{}))
	assert.True(t, schema.IsDefault(reflect.ValueOf(schema.Ref[Customer]{})))
	assert.False(t, schema.IsDefault(reflect.ValueOf(3)))
	assert.False(t, schema.IsDefault(reflect.ValueOf(schema.RefTo[Customer](int64(1)))))
}
