package kvs

import (
	"fmt"
)

// Flag marks a single key-value with behavior the interpolator and
// printers must honor.
type Flag uint8

const (
	// FlagSensitive values are redacted when printed and are never
	// rewritten by the global re-interpolation pass.
	FlagSensitive Flag = 1 << iota
	// FlagNoInterpolation values are never expanded; Expanded always
	// equals Raw.
	FlagNoInterpolation
)

// Has reports whether every bit of o is set.
func (f Flag) Has(o Flag) bool {
	return f&o == o
}

// RedactedValue is the placeholder printed in place of sensitive values.
const RedactedValue = "REDACTED"

// nullSourceURI is the provenance URI for key-values built without a
// declaring resource.
const nullSourceURI = "null:///"

// Source records where a KeyValue came from: the resource URI, the
// declaring resource key (nil for roots), and the 1-based position within
// the declaring resource.
type Source struct {
	URI       string
	Reference *KeyValue
	Index     int
}

// KeyValue is an immutable key/value pair with provenance. Raw is the
// value as parsed; Expanded is the value after interpolation and equals
// Raw until interpolation runs.
type KeyValue struct {
	Key         string
	Raw         string
	Expanded    string
	OriginalKey string
	Source      Source
	Flags       Flag
}

// NewKeyValue returns a KeyValue with no provenance, Expanded == Raw.
func NewKeyValue(key, value string) KeyValue {
	return KeyValue{
		Key:         key,
		Raw:         value,
		Expanded:    value,
		OriginalKey: key,
		Source:      Source{URI: nullSourceURI},
	}
}

// Value returns the effective value, which is the expanded one.
func (kv KeyValue) Value() string {
	return kv.Expanded
}

// Sensitive reports whether the value must not be printed.
func (kv KeyValue) Sensitive() bool {
	return kv.Flags.Has(FlagSensitive)
}

// NoInterpolation reports whether the value is exempt from expansion.
func (kv KeyValue) NoInterpolation() bool {
	return kv.Flags.Has(FlagNoInterpolation)
}

// WithKey returns a copy with a different key. The original key is
// preserved in OriginalKey.
func (kv KeyValue) WithKey(key string) KeyValue {
	kv.Key = key
	return kv
}

// WithExpanded returns a copy with a different expanded value.
func (kv KeyValue) WithExpanded(expanded string) KeyValue {
	kv.Expanded = expanded
	return kv
}

// WithSealedValue returns a copy whose raw and expanded value are both
// replaced, used when a filter rewrites a value outright.
func (kv KeyValue) WithSealedValue(value string) KeyValue {
	kv.Raw = value
	kv.Expanded = value
	return kv
}

// AddFlags returns a copy with the given flags set in addition to the
// existing ones.
func (kv KeyValue) AddFlags(f Flag) KeyValue {
	kv.Flags |= f
	return kv
}

// PrintableValue is the expanded value, or RedactedValue for sensitive
// entries. Printers must use this accessor.
func (kv KeyValue) PrintableValue() string {
	if kv.Sensitive() {
		return RedactedValue
	}
	return kv.Expanded
}

func (kv KeyValue) String() string {
	return fmt.Sprintf("KeyValue[%s=%s]", kv.Key, kv.PrintableValue())
}
