package compiler_test

import (
	"fmt"

	"github.com/syssam/weft/compiler"
	"github.com/syssam/weft/dialect"
	"github.com/syssam/weft/schema"
)

// Shared domain fixtures for the compiler tests.

type Customer struct {
	ID   int64  `db:"id,pk,auto"`
	Name string `db:"name"`
}

type Order struct {
	ID       int64    `db:"id,pk,auto"`
	Customer Customer `db:",fk"`
	Amount   int64    `db:"amount"`
	Revision int64    `db:"revision,version"`
}

type Carrier struct {
	ID   int64  `db:"id,pk"`
	Name string `db:"name"`
}

type Shipment struct {
	ID      int64    `db:"id,pk,auto"`
	Carrier *Carrier `db:",fk"`
	Order   Order    `db:",fk"`
}

type Region struct {
	ID   int64  `db:"id,pk"`
	Name string `db:"name"`
}

type Warehouse struct {
	ID     int64  `db:"id,pk"`
	Region Region `db:",fk"`
}

type Allocation struct {
	ID        int64      `db:"id,pk,auto"`
	Warehouse *Warehouse `db:",fk"`
	Qty       int64      `db:"qty"`
}

type Invoice struct {
	ID     int64             `db:"id,pk,auto"`
	Order  schema.Ref[Order] `db:",fk"`
	Number string            `db:"number"`
}

type Audit struct {
	CreatedBy string `db:"created_by"`
	UpdatedBy string `db:"updated_by"`
}

type Product struct {
	ID    int64  `db:"id,pk,auto"`
	Name  string `db:"name"`
	Audit Audit  `db:",inline"`
}

type LineKey struct {
	OrderID int64 `db:"order_id"`
	Seq     int   `db:"seq"`
}

type OrderLine struct {
	Key  LineKey `db:",pk"`
	Item string  `db:"item"`
}

type TicketState string

const (
	TicketOpen   TicketState = "open"
	TicketClosed TicketState = "closed"
)

type Money struct {
	Cents    int64
	Currency string
}

type Ticket struct {
	ID    int64       `db:"id,pk,auto"`
	State TicketState `db:"state,enum=name"`
	Price Money       `db:"price_cents|price_currency,convert=money"`
}

type moneyConverter struct{}

func (moneyConverter) Columns() int { return 2 }

func (moneyConverter) ToColumns(v any) ([]any, error) {
	m, ok := v.(Money)
	if !ok {
		return nil, fmt.Errorf("money converter got %T", v)
	}
	return []any{m.Cents, m.Currency}, nil
}

func (moneyConverter) FromColumns(cols []any) (any, error) {
	if len(cols) != 2 {
		return nil, fmt.Errorf("money converter got %d columns", len(cols))
	}
	cents, _ := cols[0].(int64)
	currency, _ := cols[1].(string)
	return Money{Cents: cents, Currency: currency}, nil
}

func init() {
	schema.RegisterConverter("money", moneyConverter{})
}

func testConfig() compiler.Config {
	return compiler.Config{Flavor: dialect.NewFlavor("test")}
}

func pgConfig() compiler.Config {
	return compiler.Config{Flavor: dialect.NewFlavor(dialect.Postgres)}
}

func mysqlConfig() compiler.Config {
	return compiler.Config{Flavor: dialect.NewFlavor(dialect.MySQL)}
}
