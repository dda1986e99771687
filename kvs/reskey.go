package kvs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vk/ezkv/media"
)

// parseQueryPairs iterates raw query pairs in order, percent-decoded.
func parseQueryPairs(query string, emit func(key, value string)) error {
	return media.ParseQuery(query, emit)
}

// The resource-key DSL. Within a loaded stream, keys with the reserved
// "_" prefix declare child resources and their metadata:
//
//	_load_<name>            child resource URI (required anchor)
//	_mediaType_<name>       media-type override        (alias _mime_)
//	_flags_<name>           CSV of load flags          (alias _flag_)
//	_param_<name>_<k>       named parameter            (alias _p_)
//	_filter_<name>_<id>     append filter, value=expr
//
// The same keys, minus the <name> segment, may be embedded in a resource
// URI's query string; normalization folds them into the declared fields.

type resKeyKind int

const (
	resKeyLoad resKeyKind = iota
	resKeyMediaType
	resKeyFlags
	resKeyParam
	resKeyFilter
)

type resKey struct {
	kind resKeyKind
	name string
	// arg is the parameter key for resKeyParam and the filter id for
	// resKeyFilter.
	arg string
}

// parseResourceKey recognizes a body meta-key. ok is false for ordinary
// data keys; err is non-nil when a recognized meta-key is malformed.
func parseResourceKey(key string) (resKey, bool, error) {
	if !strings.HasPrefix(key, "_") {
		return resKey{}, false, nil
	}
	rest := key[1:]
	token := rest
	remainder := ""
	if i := strings.Index(rest, "_"); i >= 0 {
		token = rest[:i]
		remainder = rest[i+1:]
	}
	var kind resKeyKind
	needsArg := false
	switch token {
	case "load":
		kind = resKeyLoad
	case "mediaType", "mime":
		kind = resKeyMediaType
	case "flags", "flag":
		kind = resKeyFlags
	case "param", "p":
		kind = resKeyParam
		needsArg = true
	case "filter":
		kind = resKeyFilter
		needsArg = true
	default:
		return resKey{}, false, nil
	}
	name := remainder
	arg := ""
	if needsArg {
		i := strings.Index(remainder, "_")
		if i < 0 {
			return resKey{}, false, fmt.Errorf("%w: %q needs a _<name>_<arg> suffix", ErrResourceKeyInvalid, key)
		}
		name = remainder[:i]
		arg = remainder[i+1:]
		if arg == "" {
			return resKey{}, false, fmt.Errorf("%w: %q has an empty argument", ErrResourceKeyInvalid, key)
		}
	}
	if !resourceNameRe.MatchString(name) {
		return resKey{}, false, fmt.Errorf("%w: %q has a bad resource name %q", ErrResourceKeyInvalid, key, name)
	}
	return resKey{kind: kind, name: name, arg: arg}, true, nil
}

// isResourceKey reports whether the key-value is a well-formed DSL key.
func isResourceKey(kv KeyValue) bool {
	_, ok, err := parseResourceKey(kv.Key)
	return ok && err == nil
}

type resourceDraft struct {
	load      *KeyValue
	flagsCSV  []string
	mediaType string
	params    [][2]string
	filters   []Filter
}

// parseResources extracts the child resources a stream declares, in
// `_load_` appearance order. Expanded values are used so URIs and flags
// may be interpolated.
func parseResources(entries []KeyValue) ([]*Resource, error) {
	drafts := map[string]*resourceDraft{}
	var order []string
	draftFor := func(name string) *resourceDraft {
		d, ok := drafts[name]
		if !ok {
			d = &resourceDraft{}
			drafts[name] = d
		}
		return d
	}
	for i := range entries {
		kv := entries[i]
		rk, ok, err := parseResourceKey(kv.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		d := draftFor(rk.name)
		switch rk.kind {
		case resKeyLoad:
			if d.load != nil {
				return nil, fmt.Errorf("%w: %q declared twice in one resource", ErrResourceNameDuplicate, rk.name)
			}
			ref := kv
			d.load = &ref
			order = append(order, rk.name)
		case resKeyMediaType:
			d.mediaType = kv.Expanded
		case resKeyFlags:
			d.flagsCSV = append(d.flagsCSV, kv.Expanded)
		case resKeyParam:
			d.params = append(d.params, [2]string{rk.arg, kv.Expanded})
		case resKeyFilter:
			d.filters = append(d.filters, Filter{ID: rk.arg, Expression: kv.Expanded, Name: rk.name})
		}
	}
	for name, d := range drafts {
		if d.load == nil {
			return nil, fmt.Errorf("%w: meta keys for %q have no _load_%s anchor", ErrResourceKeyInvalid, name, name)
		}
	}
	var out []*Resource
	for _, name := range order {
		d := drafts[name]
		r, err := NewResource(name, d.load.Expanded)
		if err != nil {
			return nil, err
		}
		for _, csv := range d.flagsCSV {
			flags, err := ParseLoadFlags(csv)
			if err != nil {
				return nil, err
			}
			r.Flags |= flags
		}
		r.MediaType = d.mediaType
		for _, p := range d.params {
			r.Parameters.Set(p[0], p[1])
		}
		r.Filters = d.filters
		r.Reference = d.load
		out = append(out, r)
	}
	return out, nil
}

// stripResourceKeys removes the DSL keys from a stream.
func stripResourceKeys(kvs KeyValues) KeyValues {
	return kvs.Filter(func(kv KeyValue) bool {
		return !isResourceKey(kv)
	})
}

// normalizeResource folds DSL parameters embedded in the resource URI's
// query string into the resource fields: flags union with existing ones,
// URI parameters override same-named ones, URI filters append after
// programmatically-set filters. Remaining query pairs are written back
// onto the URI.
func normalizeResource(r *Resource) (*Resource, error) {
	out := r.clone()
	out.normalized = true
	u, err := r.uriParsed()
	if err != nil {
		return nil, err
	}
	if u.RawQuery == "" {
		return out, nil
	}
	var remaining []string
	var queryErr error
	err = parseQueryPairs(u.RawQuery, func(k, v string) {
		if queryErr != nil {
			return
		}
		switch {
		case k == "_mediaType" || k == "_mime":
			out.MediaType = v
		case k == "_flags" || k == "_flag":
			flags, err := ParseLoadFlags(v)
			if err != nil {
				queryErr = err
				return
			}
			out.Flags |= flags
		case strings.HasPrefix(k, "_param_"):
			queryErr = setQueryParam(out, k[len("_param_"):], v, k)
		case strings.HasPrefix(k, "_p_"):
			queryErr = setQueryParam(out, k[len("_p_"):], v, k)
		case strings.HasPrefix(k, "_filter_"):
			id := k[len("_filter_"):]
			if id == "" {
				queryErr = fmt.Errorf("%w: %q has an empty filter id", ErrResourceKeyInvalid, k)
				return
			}
			out.Filters = append(out.Filters, Filter{ID: id, Expression: v, Name: r.Name})
		case k == "_param" || k == "_p" || k == "_filter":
			queryErr = fmt.Errorf("%w: %q needs an argument suffix", ErrResourceKeyInvalid, k)
		default:
			remaining = append(remaining, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bad uri query in %q: %v", ErrResourceKeyInvalid, r.URI, err)
	}
	if queryErr != nil {
		return nil, queryErr
	}
	u.RawQuery = strings.Join(remaining, "&")
	out.URI = u.String()
	return out, nil
}

func setQueryParam(r *Resource, key, value, raw string) error {
	if key == "" {
		return fmt.Errorf("%w: %q has an empty parameter key", ErrResourceKeyInvalid, raw)
	}
	r.Parameters.Set(key, value)
	return nil
}

// formatResource writes a resource back out as DSL keys. Fan-out loaders
// use this so synthesized children travel through the scheduler like any
// declared resource.
func formatResource(r *Resource, emit func(key, value string)) {
	emit("_load_"+r.Name, r.URI)
	if r.MediaType != "" {
		emit("_mediaType_"+r.Name, r.MediaType)
	}
	if r.Flags != 0 {
		emit("_flags_"+r.Name, r.Flags.String())
	}
	for _, k := range r.Parameters.Keys() {
		v, _ := r.Parameters.Get(k)
		emit("_param_"+r.Name+"_"+k, v)
	}
	for _, f := range r.Filters {
		emit("_filter_"+r.Name+"_"+f.ID, f.Expression)
	}
}
