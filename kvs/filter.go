package kvs

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterContext carries per-resource state to filters.
type FilterContext struct {
	Environment Environment
	Parameters  *Parameters
	// IgnoreKey marks entries a filter must pass through untouched. Set
	// when the resource carries NO_FILTER_RESOURCE_KEYS so the DSL keys
	// survive for the extractor.
	IgnoreKey func(KeyValue) bool
	// Profiles are the active profiles, when the resource declares any.
	Profiles []string
}

func (c FilterContext) ignored(kv KeyValue) bool {
	return c.IgnoreKey != nil && c.IgnoreKey(kv)
}

// KeyValuesFilter transforms a stream for one Filter declaration. A
// filter that does not recognize the id reports handled=false so
// successors get a try.
type KeyValuesFilter interface {
	Filter(fctx FilterContext, kvs KeyValues, f Filter) (out KeyValues, handled bool, err error)
}

// KeyValuesFilterFunc adapts a function to KeyValuesFilter.
type KeyValuesFilterFunc func(fctx FilterContext, kvs KeyValues, f Filter) (KeyValues, bool, error)

func (fn KeyValuesFilterFunc) Filter(fctx FilterContext, kvs KeyValues, f Filter) (KeyValues, bool, error) {
	return fn(fctx, kvs, f)
}

// filterTarget selects what part of an entry a filter operates on.
type filterTarget int

const (
	targetDefault filterTarget = iota
	targetKey
	targetValue
)

// splitFilterID strips a target-selector suffix from a filter id. Ids and
// suffixes are case-insensitive.
func splitFilterID(id string) (string, filterTarget) {
	lower := strings.ToLower(id)
	switch {
	case strings.HasSuffix(lower, "_key"):
		return lower[:len(lower)-len("_key")], targetKey
	case strings.HasSuffix(lower, "_value"):
		return lower[:len(lower)-len("_value")], targetValue
	case strings.HasSuffix(lower, "_val"):
		return lower[:len(lower)-len("_val")], targetValue
	default:
		return lower, targetDefault
	}
}

func targetOf(kv KeyValue, t filterTarget) string {
	if t == targetValue {
		return kv.Expanded
	}
	return kv.Key
}

// grepFilter retains entries whose target matches the expression
// anywhere.
func grepFilter(fctx FilterContext, kvs KeyValues, f Filter) (KeyValues, bool, error) {
	base, target := splitFilterID(f.ID)
	if base != "grep" {
		return kvs, false, nil
	}
	pattern, err := regexp.Compile(f.Expression)
	if err != nil {
		return kvs, true, fmt.Errorf("%w: grep %q: %v", ErrBadFilterExpression, f.Expression, err)
	}
	out := kvs.Filter(func(kv KeyValue) bool {
		if fctx.ignored(kv) {
			return true
		}
		return pattern.MatchString(targetOf(kv, target))
	})
	return out.Memoize(), true, nil
}

// sedFilter rewrites or deletes entries with the tiny sed dialect.
func sedFilter(fctx FilterContext, kvs KeyValues, f Filter) (KeyValues, bool, error) {
	base, target := splitFilterID(f.ID)
	if base != "sed" {
		return kvs, false, nil
	}
	cmd, err := parseSed(f.Expression)
	if err != nil {
		return kvs, true, err
	}
	out := kvs.FlatMap(func(kv KeyValue) KeyValues {
		if fctx.ignored(kv) {
			return Of(kv)
		}
		result, keep := cmd.execute(targetOf(kv, target))
		if !keep {
			return Empty()
		}
		if target == targetValue {
			if result == kv.Expanded {
				return Of(kv)
			}
			return Of(kv.WithSealedValue(result))
		}
		if result == kv.Key {
			return Of(kv)
		}
		return Of(kv.WithKey(result))
	})
	return out.Memoize(), true, nil
}

// joinFilter merges entries sharing a key into the first occurrence,
// joining expanded values with the expression as separator. Join always
// targets values; a target suffix is ignored.
func joinFilter(fctx FilterContext, kvs KeyValues, f Filter) (KeyValues, bool, error) {
	base, _ := splitFilterID(f.ID)
	if base != "join" {
		return kvs, false, nil
	}
	index := map[string]int{}
	var out []KeyValue
	for kv := range kvs.All() {
		if at, ok := index[kv.Key]; ok {
			joined := out[at].Expanded + f.Expression + kv.Expanded
			out[at] = out[at].WithExpanded(joined)
			continue
		}
		index[kv.Key] = len(out)
		out = append(out, kv)
	}
	return NewKeyValues(out), true, nil
}

// builtinFilters returns the built-in filter chain in registration order.
func builtinFilters() []KeyValuesFilter {
	return []KeyValuesFilter{
		KeyValuesFilterFunc(grepFilter),
		KeyValuesFilterFunc(sedFilter),
		KeyValuesFilterFunc(joinFilter),
	}
}
