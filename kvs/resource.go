package kvs

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Filter is one per-resource transformation: a filter id (optionally
// suffixed with a target selector), a free-form expression, and an
// optional label used in diagnostics.
type Filter struct {
	ID         string
	Expression string
	Name       string
}

func (f Filter) String() string {
	if f.Name != "" {
		return fmt.Sprintf("%s[%s](%s)", f.ID, f.Name, f.Expression)
	}
	return fmt.Sprintf("%s(%s)", f.ID, f.Expression)
}

var resourceNameRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Resource declares a URI-addressable source of key-values. The scheme
// selects the loader; no scheme means file. A Resource is normalized
// exactly once, which folds DSL parameters embedded in the URI query into
// the declared fields.
type Resource struct {
	// Name is the symbolic name, [a-zA-Z0-9]+. It appears in meta-key
	// names and duplicate detection among siblings.
	Name string
	// URI addresses the source.
	URI string
	// Flags are the load flags in effect for this resource.
	Flags LoadFlag
	// MediaType optionally overrides extension sniffing.
	MediaType string
	// Parameters are named string parameters such as profile or
	// stdin_arg.
	Parameters *Parameters
	// Filters apply to the loaded stream in order.
	Filters []Filter
	// Reference is the key-value that declared this resource; nil for
	// roots.
	Reference *KeyValue

	normalized bool
}

// NewResource returns a resource declaration, validating the name.
func NewResource(name, uri string) (*Resource, error) {
	if !resourceNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: resource name %q must match [a-zA-Z0-9]+", ErrResourceKeyInvalid, name)
	}
	return &Resource{Name: name, URI: uri, Parameters: NewParameters()}, nil
}

// MustResource is NewResource for statically-known names.
func MustResource(name, uri string) *Resource {
	r, err := NewResource(name, uri)
	if err != nil {
		panic(err)
	}
	return r
}

// Normalized reports whether URI-query parameters have been folded in.
func (r *Resource) Normalized() bool {
	return r.normalized
}

// clone returns an independent copy sharing only the Reference pointer.
func (r *Resource) clone() *Resource {
	out := *r
	out.Parameters = r.Parameters.Copy()
	out.Filters = slices.Clone(r.Filters)
	return &out
}

// childOf returns a copy re-pointed at a new name and URI, used by
// fan-out loaders that synthesize per-profile, per-provider or per-hit
// children inheriting the parent's configuration.
func (r *Resource) childOf(name, uri string) *Resource {
	out := r.clone()
	out.Name = name
	out.URI = uri
	out.normalized = false
	return out
}

// scheme returns the URI scheme, with "file" for scheme-less URIs.
func (r *Resource) scheme() string {
	if i := strings.Index(r.URI, ":"); i > 0 {
		s := r.URI[:i]
		if !strings.ContainsAny(s, "/?#") {
			return strings.ToLower(s)
		}
	}
	return "file"
}

// uriParsed parses the URI.
func (r *Resource) uriParsed() (*url.URL, error) {
	u, err := url.Parse(r.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: bad uri %q: %v", ErrResourceKeyInvalid, r.URI, err)
	}
	return u, nil
}

// uriPath returns the URI path with the leading slash removed; "" for a
// bare or root path.
func (r *Resource) uriPath() string {
	u, err := r.uriParsed()
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" && u.Opaque != "" {
		p = u.Opaque
	}
	p = strings.TrimPrefix(p, "/")
	return p
}

// Description renders the resource for diagnostics and logging.
func (r *Resource) Description() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "uri='%s'", r.URI)
	if r.Flags != 0 {
		fmt.Fprintf(&sb, " flags=[%s]", r.Flags)
	}
	if ref := r.Reference; ref != nil {
		fmt.Fprintf(&sb, " specified with key: '%s' in uri='%s'", ref.Key, ref.Source.URI)
	}
	return sb.String()
}

func (r *Resource) sourceName() string {
	return r.Name
}

func (r *Resource) loadFlags() LoadFlag {
	return r.Flags
}

// namedSource is the union of the two things the scheduler can load: a
// declared Resource or an inline, already-built KeyValues.
type namedSource interface {
	sourceName() string
	loadFlags() LoadFlag
}

// namedKeyValues is an inline source: a literal stream under a symbolic
// name.
type namedKeyValues struct {
	name  string
	kvs   KeyValues
	flags LoadFlag
}

func (n *namedKeyValues) sourceName() string {
	return n.name
}

func (n *namedKeyValues) loadFlags() LoadFlag {
	return n.flags
}
