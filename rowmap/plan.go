package rowmap

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/syssam/weft/schema"

	"golang.org/x/sync/singleflight"
)

// stepKind enumerates the closed set of scan step variants.
type stepKind uint8

const (
	stepPlain stepKind = iota
	stepConverter
	stepEnumName
	stepEnumOrdinal
	stepRef
	stepRecord
)

// step populates one field from a fixed span of row columns.
type step struct {
	kind  stepKind
	field *schema.Field
	span  int
	sub   *Plan // record sub-plan; key sub-plan for compound-key refs
	conv  schema.Converter
}

// Plan is a compiled scan recipe for one record type: an ordered list of
// steps whose spans sum to the plan's arity, plus the position of the
// primary key inside the flattened layout for interner lookups. Plans are
// immutable and shared; PlanFor caches them per type.
type Plan struct {
	typ      *schema.Type
	steps    []step
	arity    int
	pkOffset int
	pkSpan   int
}

var (
	plans       sync.Map // reflect.Type -> *Plan
	planFlights singleflight.Group
)

// PlanFor returns the scan plan for t, compiling and caching it on first
// use. Pointer types are dereferenced. Concurrent first calls for the
// same type compute the plan once; a failed compilation is returned to
// every waiter but not memoized, so a later call retries.
func PlanFor(t reflect.Type) (*Plan, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, schema.NewStructError(fmt.Sprintf("%v", t), "", "scan plans require a struct type")
	}
	if p, ok := plans.Load(t); ok {
		return p.(*Plan), nil
	}
	v, err, _ := planFlights.Do(t.String(), func() (any, error) {
		if p, ok := plans.Load(t); ok {
			return p, nil
		}
		p, err := compilePlan(t)
		if err != nil {
			return nil, err
		}
		actual, _ := plans.LoadOrStore(t, p)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Plan), nil
}

// Arity returns the number of columns one instance consumes.
func (p *Plan) Arity() int { return p.arity }

// Applicable reports whether the plan fits a result set of n columns.
// A mismatch is not an error; the type simply does not map that shape.
func (p *Plan) Applicable(n int) bool { return n == p.arity }

// Type returns the record descriptor the plan scans into.
func (p *Plan) Type() *schema.Type { return p.typ }

func compilePlan(rt reflect.Type) (*Plan, error) {
	t, err := schema.TypeOf(rt)
	if err != nil {
		return nil, err
	}
	// A type that fails validation fails identically on every use; the
	// descriptor cache makes the re-check cheap.
	if err := schema.Validate(t, schema.All); err != nil {
		return nil, err
	}
	p := &Plan{typ: t, pkOffset: -1}
	for _, f := range t.Fields() {
		s, err := compileStep(f)
		if err != nil {
			return nil, err
		}
		if f.IsPK() && p.pkSpan == 0 {
			p.pkOffset, p.pkSpan = p.arity, s.span
		}
		p.steps = append(p.steps, s)
		p.arity += s.span
	}
	return p, nil
}

func compileStep(f *schema.Field) (step, error) {
	switch {
	case f.ConverterName() != "":
		conv, ok := f.Converter()
		if !ok {
			return step{}, schema.NewStructError(f.Owner().Name(), f.Name(),
				fmt.Sprintf("converter %q is not registered", f.ConverterName()))
		}
		return step{kind: stepConverter, field: f, span: conv.Columns(), conv: conv}, nil
	case f.Enum() == schema.EnumName:
		return step{kind: stepEnumName, field: f, span: 1}, nil
	case f.Enum() == schema.EnumOrdinal:
		return step{kind: stepEnumOrdinal, field: f, span: 1}, nil
	case f.RefTarget() != nil:
		return compileRefStep(f)
	case f.Record() != nil:
		sub, err := PlanFor(f.Record().GoType())
		if err != nil {
			return step{}, err
		}
		return step{kind: stepRecord, field: f, span: sub.arity, sub: sub}, nil
	default:
		return step{kind: stepPlain, field: f, span: 1}, nil
	}
}

// compileRefStep sizes a lazy-reference step by the referenced key's
// column span. Refs never recurse into the target's full plan; that is
// what keeps reference cycles compilable.
func compileRefStep(f *schema.Field) (step, error) {
	target := f.RefTarget()
	pk := target.PrimaryKey()
	if pk == nil {
		return step{}, schema.NewStructError(f.Owner().Name(), f.Name(),
			fmt.Sprintf("reference target %s has no primary key", target.Name()))
	}
	s := step{kind: stepRef, field: f, span: 1}
	if rec := pk.Record(); rec != nil && !pk.IsFK() {
		sub, err := PlanFor(rec.GoType())
		if err != nil {
			return step{}, err
		}
		s.sub, s.span = sub, sub.arity
	}
	return s, nil
}
