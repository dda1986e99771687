package kvs

import (
	"fmt"
	"strings"
)

// LoadFlag is a set of per-resource load flags. Flags are named in the
// resource DSL (`_flags_<name>`) or set programmatically; names are
// case-insensitive.
type LoadFlag uint16

const (
	// LoadFlagNoRequire tolerates a missing resource, yielding an empty
	// stream instead of an error. Aliases: OPTIONAL, NOT_REQUIRED.
	LoadFlagNoRequire LoadFlag = 1 << iota
	// LoadFlagNoEmpty requires the resource to contribute at least one
	// key-value after filtering.
	LoadFlagNoEmpty
	// LoadFlagNoReplace skips keys already present in the accumulator.
	LoadFlagNoReplace
	// LoadFlagNoAdd routes the resource's keys to the variables store
	// only; nothing is appended to the result.
	LoadFlagNoAdd
	// LoadFlagNoLoadChildren ignores `_load_` keys in the resource body,
	// with a warning.
	LoadFlagNoLoadChildren
	// LoadFlagNoInterpolate marks every produced key-value NO_INTERPOLATION.
	LoadFlagNoInterpolate
	// LoadFlagSensitive marks every produced key-value SENSITIVE.
	LoadFlagSensitive
	// LoadFlagNoFilterResourceKeys hints filters to pass resource-DSL keys
	// through untouched so the extractor can still see them.
	LoadFlagNoFilterResourceKeys
	// LoadFlagPropagate makes child resources inherit this resource's
	// flag set.
	LoadFlagPropagate
)

// Has reports whether every bit of o is set.
func (f LoadFlag) Has(o LoadFlag) bool {
	return f&o == o
}

var loadFlagTable = []struct {
	flag      LoadFlag
	canonical string
	aliases   []string
}{
	{LoadFlagNoRequire, "NO_REQUIRE", []string{"OPTIONAL", "NOT_REQUIRED"}},
	{LoadFlagNoEmpty, "NO_EMPTY", nil},
	{LoadFlagNoReplace, "NO_REPLACE", nil},
	{LoadFlagNoAdd, "NO_ADD", nil},
	{LoadFlagNoLoadChildren, "NO_LOAD_CHILDREN", nil},
	{LoadFlagNoInterpolate, "NO_INTERPOLATE", nil},
	{LoadFlagSensitive, "SENSITIVE", nil},
	{LoadFlagNoFilterResourceKeys, "NO_FILTER_RESOURCE_KEYS", nil},
	{LoadFlagPropagate, "PROPAGATE", nil},
}

// ParseLoadFlag parses a single flag name, case-insensitively. LOCK is
// declared by the DSL but reserved; it is rejected until its semantics
// are specified.
func ParseLoadFlag(name string) (LoadFlag, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "LOCK" {
		return 0, fmt.Errorf("%w: load flag LOCK is reserved", ErrResourceKeyInvalid)
	}
	for _, e := range loadFlagTable {
		if e.canonical == upper {
			return e.flag, nil
		}
		for _, a := range e.aliases {
			if a == upper {
				return e.flag, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: bad load flag %q", ErrResourceKeyInvalid, name)
}

// ParseLoadFlags parses a CSV of flag names into a set.
func ParseLoadFlags(csv string) (LoadFlag, error) {
	var flags LoadFlag
	for _, name := range parseCSV(csv) {
		f, err := ParseLoadFlag(name)
		if err != nil {
			return 0, err
		}
		flags |= f
	}
	return flags, nil
}

// String renders the set as a CSV of canonical names, in declaration
// order.
func (f LoadFlag) String() string {
	var names []string
	for _, e := range loadFlagTable {
		if f.Has(e.flag) {
			names = append(names, e.canonical)
		}
	}
	return strings.Join(names, ",")
}

// keyValueFlags maps the load flags that brand produced key-values.
func (f LoadFlag) keyValueFlags() Flag {
	var out Flag
	if f.Has(LoadFlagNoInterpolate) {
		out |= FlagNoInterpolation
	}
	if f.Has(LoadFlagSensitive) {
		out |= FlagSensitive
	}
	return out
}
