package weft_test

// Shared domain fixtures for the root package tests.

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
