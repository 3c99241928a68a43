package invalid

type Broken struct {
	Name string `db:"name,primary"`
}
