package kvs

import (
	"slices"
	"strings"
)

// Variables resolves a name to a value for interpolation. Unlike
// KeyValues there are no duplicates and no ordering; variables never
// appear in the final loaded output.
type Variables func(name string) (string, bool)

// Get resolves name. A nil Variables resolves nothing.
func (v Variables) Get(name string) (string, bool) {
	if v == nil {
		return "", false
	}
	return v(name)
}

// RenameKey returns a Variables that rewrites the looked-up name first.
func (v Variables) RenameKey(fn func(string) string) Variables {
	return func(name string) (string, bool) {
		return v.Get(fn(name))
	}
}

// FindEntry tries names in order and returns the first bound one.
func (v Variables) FindEntry(names ...string) (string, string, bool) {
	for _, n := range names {
		if value, ok := v.Get(n); ok {
			return n, value, true
		}
	}
	return "", "", false
}

// MapVariables adapts a plain map.
func MapVariables(m map[string]string) Variables {
	return func(name string) (string, bool) {
		value, ok := m[name]
		return value, ok
	}
}

// ChainVariables composes lookups; the first binding wins.
func ChainVariables(chain ...Variables) Variables {
	return func(name string) (string, bool) {
		for _, v := range chain {
			if value, ok := v.Get(name); ok {
				return value, true
			}
		}
		return "", false
	}
}

// Parameters is an ordered, duplicate-free string map used for resource
// parameters. Setting an existing key overrides the value but keeps the
// original position.
type Parameters struct {
	keys   []string
	values map[string]string
}

// NewParameters returns an empty Parameters.
func NewParameters() *Parameters {
	return &Parameters{values: map[string]string{}}
}

// Set binds key to value.
func (p *Parameters) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value bound to key.
func (p *Parameters) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	value, ok := p.values[key]
	return value, ok
}

// Keys returns the keys in insertion order.
func (p *Parameters) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

// Len returns the number of bindings.
func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Copy returns an independent copy.
func (p *Parameters) Copy() *Parameters {
	out := NewParameters()
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// Variables adapts the parameters to an interpolation lookup.
func (p *Parameters) Variables() Variables {
	return func(name string) (string, bool) {
		return p.Get(name)
	}
}

// boolParam interprets a parameter as a boolean; absent or unparsable is
// false.
func (p *Parameters) boolParam(key string) bool {
	value, ok := p.Get(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseCSV splits a comma-separated list, trimming whitespace and
// dropping blanks.
func parseCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
