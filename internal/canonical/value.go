package canonical

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the canonical value types.
type Value interface {
	canonicalValue()
}

// Null is the JSON null. SQL NULL columns map to it.
type Null struct{}

func (Null) canonicalValue() {}

// String is a JSON string.
type String string

func (String) canonicalValue() {}

// Int is a JSON integer. Always int64.
type Int int64

func (Int) canonicalValue() {}

// Bool is a JSON boolean.
type Bool bool

func (Bool) canonicalValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) canonicalValue() {}

// Object maps keys to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) canonicalValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string ordering compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Strings builds an Array of String values.
func Strings(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// OptionalString maps nil to Null.
func OptionalString(s *string) Value {
	if s == nil {
		return Null{}
	}
	return String(*s)
}
