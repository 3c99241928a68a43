package cycle

type Hen struct {
	Egg Egg `db:",pk,fk"`
}

type Egg struct {
	Hen *Hen `db:",pk,fk"`
}
