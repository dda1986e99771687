package boot

import (
	"strings"

	"github.com/vk/ezkv/kvs"
)

// activationKey gates a whole document on the active profiles.
const activationKey = "config.activate.on-profile"

// OnProfileFilter returns the "onprofile" filter: when a loaded stream
// contains the config.activate.on-profile key, the stream is kept (minus
// the activation key) only if its expression matches an active profile,
// and dropped entirely otherwise.
//
// The expression is a CSV of profile names; a name prefixed with "!"
// matches when that profile is NOT active. The document activates if any
// term matches.
func OnProfileFilter() kvs.KeyValuesFilter {
	return kvs.KeyValuesFilterFunc(onProfile)
}

func onProfile(fctx kvs.FilterContext, keyValues kvs.KeyValues, f kvs.Filter) (kvs.KeyValues, bool, error) {
	if !strings.EqualFold(f.ID, "onprofile") {
		return keyValues, false, nil
	}
	expr, found := "", false
	for kv := range keyValues.All() {
		if kv.Key == activationKey {
			expr = kv.Expanded
			found = true
		}
	}
	if !found {
		return keyValues, true, nil
	}
	if !profileMatches(expr, fctx.Profiles) {
		return kvs.Empty(), true, nil
	}
	kept := keyValues.Filter(func(kv kvs.KeyValue) bool {
		return kv.Key != activationKey
	})
	return kept.Memoize(), true, nil
}

func profileMatches(expr string, active []string) bool {
	isActive := func(name string) bool {
		for _, p := range active {
			if p == name {
				return true
			}
		}
		return false
	}
	for _, term := range splitCSV(expr) {
		if negated := strings.TrimPrefix(term, "!"); negated != term {
			if !isActive(negated) {
				return true
			}
			continue
		}
		if isActive(term) {
			return true
		}
	}
	return false
}
