package kvs

import (
	"errors"
	"fmt"

	"github.com/vk/ezkv/internal/interp"
)

// expandKeyValues expands any remaining ${...} references in each
// entry's Expanded text. Raw is never touched, and expanding the current
// Expanded (rather than recomputing from Raw) keeps rewrites made by
// filters, such as joined values, intact across repeated passes.
//
// The lookup chain per entry is: keys of this batch already processed in
// this pass (resolved values), then the raw view of the whole batch (so
// entries may reference keys that appear later), then the outer variables
// chain.
//
// local marks same-resource interpolation, where SENSITIVE values may
// still be rewritten; the global passes leave them verbatim. strict makes
// an unresolvable reference an error; the incremental passes are lenient
// so a later resource may still supply the variable.
func expandKeyValues(entries []KeyValue, outer Variables, local, strict bool) ([]KeyValue, error) {
	raws := make(map[string]string, len(entries))
	for _, kv := range entries {
		raws[kv.Key] = kv.Raw
	}
	resolved := make(map[string]string, len(entries))
	lookup := func(name string) (string, bool) {
		if v, ok := resolved[name]; ok {
			return v, true
		}
		if v, ok := raws[name]; ok {
			return v, true
		}
		return outer.Get(name)
	}
	out := make([]KeyValue, 0, len(entries))
	for _, kv := range entries {
		switch {
		case kv.NoInterpolation():
			kv.Expanded = kv.Raw
		case kv.Sensitive() && !local:
			// Keep whatever the local pass produced.
		default:
			var expanded string
			var err error
			if strict {
				expanded, err = interp.Expand(kv.Expanded, lookup)
			} else {
				expanded, err = interp.ExpandLenient(kv.Expanded, lookup)
			}
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", kv.Key, normalizeInterpError(err))
			}
			kv.Expanded = expanded
		}
		resolved[kv.Key] = kv.Expanded
		out = append(out, kv)
	}
	return out, nil
}

func normalizeInterpError(err error) error {
	var missing *interp.MissingVariableError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %s", ErrMissingVariable, missing.Name)
	}
	var limit *interp.LimitError
	if errors.As(err, &limit) {
		return fmt.Errorf("%w: depth %d", ErrInterpolationLimit, limit.Depth)
	}
	return err
}
