// Package validation holds the constructor guards used across tally. They
// panic: a missing dependency is a wiring bug, not a runtime condition.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics when a mandatory pointer dependency is nil.
//
//	validation.AssertNotNil(cfg, "observability config")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panicMissing(name)
	}
}

// AssertPresent is AssertNotNil for interface-typed dependencies. An
// interface holding a typed nil is rejected too.
//
//	validation.AssertPresent(records, "record repository")
func AssertPresent(dep any, name string) {
	if dep == nil {
		panicMissing(name)
	}
	switch v := reflect.ValueOf(dep); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panicMissing(name)
		}
	}
}

func panicMissing(name string) {
	panic(fmt.Sprintf("critical error: %s cannot be nil", name))
}
