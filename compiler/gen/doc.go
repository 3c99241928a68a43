// Package gen emits per-entity metamodel packages: typed field paths,
// column constants, and table names derived from loaded record types.
// Templates written against generated paths are checked by the Go
// compiler instead of failing at first execution.
//
// The generator consumes the descriptors produced by compiler/load and
// writes one package per entity under the target directory:
//
//	meta/
//	  customer/customer.go
//	  order/order.go
//
// A query then reads as
//
//	weft.SQL("SELECT {} FROM {} WHERE {} > {}",
//	    weft.TokenOf[model.Order](), weft.TokenOf[model.Order](),
//	    order.Amount, 100)
//
// with order.Amount a compiler.Path constant the compiler resolves like
// any hand-written path.
package gen
