package node

import (
	"reflect"

	"golang.org/x/xerrors"
)

// reflectInjector is a dependency injector resolving a dependency by the
// assignability of its type.
//
// - implements node.Injector
type reflectInjector struct {
	mapper map[reflect.Type]interface{}
	order  []reflect.Type
}

// NewInjector returns an empty injector.
func NewInjector() Injector {
	return &reflectInjector{
		mapper: make(map[reflect.Type]interface{}),
	}
}

// Resolve implements node.Injector. It populates the pointer with the first
// dependency injected that is assignable to it.
func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	if !rv.Elem().IsValid() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	for _, typ := range inj.order {
		if typ.AssignableTo(rv.Elem().Type()) {
			rv.Elem().Set(reflect.ValueOf(inj.mapper[typ]))
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", rv.Elem().Type())
}

// Inject implements node.Injector. A dependency replaces the previous one of
// the same type.
func (inj *reflectInjector) Inject(v interface{}) {
	key := reflect.TypeOf(v)

	_, found := inj.mapper[key]
	if !found {
		inj.order = append(inj.order, key)
	}

	inj.mapper[key] = v
}
