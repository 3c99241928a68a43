package valid

import (
	"time"

	"github.com/syssam/weft/schema"
)

type Customer struct {
	ID   int64  `db:"id,pk,auto"`
	Name string `db:"name"`
}

type Address struct {
	Street string `db:"street"`
	City   string `db:"city"`
}

type Money struct {
	Cents    int64
	Currency string
}

type Order struct {
	ID       int64             `db:"id,pk,auto"`
	Customer Customer          `db:",fk"`
	Billing  Address           `db:",inline"`
	PlacedAt time.Time         `db:"placed_at"`
	Note     *string           `db:"note"`
	Parent   schema.Ref[Order]
	Total    Money             `db:"cents|currency,convert=money"`
	Fee      Money             `db:",convert=money"`
	Revision int32             `db:"revision,version"`
	Draft    bool              `db:"-"`

	counter int
}

type LegacyNote struct {
	ID   int64  `db:"id,pk"`
	Body string `db:"body"`
}

func (LegacyNote) TableName() string { return "audit.notes" }
