package kvs

import (
	"context"
	"errors"
	"fmt"
)

// node wraps one pending source with a back-pointer to the node that
// declared it, so failures can report the full resource chain.
type node struct {
	source namedSource
	parent *node
}

// sourceLoader runs one load: a LIFO stack of pending nodes, the ordered
// accumulator, a variables store merged into the lookup chain, and a key
// index for NO_REPLACE checks. It is owned by a single load invocation
// and dropped at completion.
type sourceLoader struct {
	system        *System
	variableStore map[string]string
	variables     Variables
	keys          map[string]bool
	store         []KeyValue
	stack         []*node
	logger        Logger
}

func newSourceLoader(system *System, rootVars Variables) *sourceLoader {
	store := map[string]string{}
	return &sourceLoader{
		system:        system,
		variableStore: store,
		variables:     ChainVariables(MapVariables(store), rootVars),
		keys:          map[string]bool{},
		logger:        system.Environment().Logger(),
	}
}

func (l *sourceLoader) load(ctx context.Context, sources []namedSource) (KeyValues, error) {
	if len(sources) == 0 {
		return Empty(), nil
	}
	roots := make([]*node, 0, len(sources))
	for _, s := range sources {
		roots = append(roots, &node{source: s})
	}
	if err := validateNames(roots); err != nil {
		return Empty(), err
	}
	l.stack = roots
	for len(l.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Empty(), err
		}
		n := l.stack[0]
		l.stack = l.stack[1:]
		if err := l.step(ctx, n); err != nil {
			return Empty(), err
		}
	}
	// One more global pass, strict this time: anything still
	// unresolvable has no later resource left to supply it.
	final, err := expandKeyValues(l.store, l.variables, false, true)
	if err != nil {
		return Empty(), err
	}
	return NewKeyValues(final), nil
}

// step runs the full per-resource pipeline: normalize, open, tag, local
// interpolation, child extraction, filters, strip, route, and the
// incremental re-interpolation of everything accumulated so far.
func (l *sourceLoader) step(ctx context.Context, n *node) error {
	var kvs KeyValues
	var resource *Resource
	flags := n.source.loadFlags()

	switch src := n.source.(type) {
	case *Resource:
		normalized, err := normalizeResource(src)
		if err != nil {
			return l.wrapErr(n, "", err)
		}
		resource = normalized
		flags = normalized.Flags
		l.logger.Load(normalized)
		kvs, err = l.open(ctx, normalized, flags, n)
		if err != nil {
			return err
		}
	case *namedKeyValues:
		kvs = src.kvs
	default:
		return fmt.Errorf("unknown source type %T", n.source)
	}

	if kvFlags := flags.keyValueFlags(); kvFlags != 0 {
		kvs = kvs.Map(func(kv KeyValue) KeyValue {
			return kv.AddFlags(kvFlags)
		})
	}

	entries, err := expandKeyValues(kvs.Slice(), l.variables, true, false)
	if err != nil {
		return l.wrapErr(n, "", err)
	}

	if flags.Has(LoadFlagNoLoadChildren) {
		if declaresChildren(entries) {
			l.logger.Warn(fmt.Sprintf("Resource declares children but NO_LOAD_CHILDREN is set; ignoring. resource: %s", describeSource(n.source)))
		}
	} else {
		children, err := parseResources(entries)
		if err != nil {
			return l.wrapErr(n, "", err)
		}
		if flags.Has(LoadFlagPropagate) {
			for _, c := range children {
				c.Flags |= flags
			}
		}
		childNodes := make([]*node, 0, len(children))
		for _, c := range children {
			childNodes = append(childNodes, &node{source: c, parent: n})
		}
		if err := validateNames(childNodes); err != nil {
			return l.wrapErr(n, "", err)
		}
		// Push keeping declaration order at the front: first declared
		// is popped next, giving depth-first left-to-right traversal.
		l.stack = append(childNodes, l.stack...)
	}

	stream := NewKeyValues(entries)
	if resource != nil {
		stream, err = l.applyFilters(resource, stream, n)
		if err != nil {
			return err
		}
	}
	stream = stripResourceKeys(stream)

	if flags.Has(LoadFlagNoAdd) {
		for kv := range stream.All() {
			l.variableStore[kv.Key] = kv.Expanded
		}
	} else {
		added := false
		for kv := range stream.All() {
			if flags.Has(LoadFlagNoReplace) && l.keys[kv.Key] {
				continue
			}
			l.keys[kv.Key] = true
			l.store = append(l.store, kv)
			added = true
		}
		if !added && flags.Has(LoadFlagNoEmpty) {
			return l.wrapErr(n, "", fmt.Errorf("%w (NO_EMPTY)", ErrEmpty))
		}
	}

	// Re-interpolate the whole accumulator so the next resource sees
	// every key loaded so far as a variable.
	expanded, err := expandKeyValues(l.store, l.variables, false, false)
	if err != nil {
		return l.wrapErr(n, "", err)
	}
	l.store = expanded
	for _, kv := range l.store {
		l.variableStore[kv.Key] = kv.Expanded
	}
	return nil
}

// open dispatches the resource to the first finder claiming it and
// normalizes the missing-resource path: under NO_REQUIRE absence yields
// an empty stream.
func (l *sourceLoader) open(ctx context.Context, r *Resource, flags LoadFlag, n *node) (KeyValues, error) {
	lctx := &LoaderContext{System: l.system, Variables: l.variables}
	var loader LoaderFunc
	for _, f := range l.system.loaderFinders {
		if found, ok := f.FindLoader(lctx, r); ok {
			loader = found
			break
		}
	}
	if loader == nil {
		return Empty(), l.wrapErr(n, "", fmt.Errorf("%w: scheme %q", ErrLoaderNotFound, r.scheme()))
	}
	kvs, err := loader(ctx)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			l.logger.Missing(r, err)
			if flags.Has(LoadFlagNoRequire) {
				return Empty(), nil
			}
		}
		return Empty(), l.wrapErr(n, "", err)
	}
	l.logger.Loaded(r)
	return kvs, nil
}

func (l *sourceLoader) applyFilters(r *Resource, kvs KeyValues, n *node) (KeyValues, error) {
	if len(r.Filters) == 0 {
		return kvs, nil
	}
	fctx := FilterContext{
		Environment: l.system.Environment(),
		Parameters:  r.Parameters,
	}
	if csv, ok := r.Parameters.Get("profile"); ok {
		fctx.Profiles = parseCSV(csv)
	}
	if r.Flags.Has(LoadFlagNoFilterResourceKeys) {
		fctx.IgnoreKey = isResourceKey
	}
	for _, f := range r.Filters {
		handled := false
		for _, impl := range l.system.filters {
			out, ok, err := impl.Filter(fctx, kvs, f)
			if err != nil {
				return Empty(), l.wrapErr(n, "", err)
			}
			if ok {
				kvs = out
				handled = true
				break
			}
		}
		if !handled {
			// An unknown filter id is a no-op so plug-in filters may be
			// declared in shared configuration without being installed.
			l.logger.Debug(fmt.Sprintf("No filter registered for id %q; ignoring.", f.ID))
		}
	}
	return kvs, nil
}

func declaresChildren(entries []KeyValue) bool {
	for _, kv := range entries {
		rk, ok, err := parseResourceKey(kv.Key)
		if err == nil && ok && rk.kind == resKeyLoad {
			return true
		}
	}
	return false
}

func validateNames(nodes []*node) error {
	seen := map[string]bool{}
	for _, n := range nodes {
		name := n.source.sourceName()
		if seen[name] {
			return fmt.Errorf("%w: %q among grouped resources", ErrResourceNameDuplicate, name)
		}
		seen[name] = true
	}
	return nil
}

func describeSource(s namedSource) string {
	switch src := s.(type) {
	case *Resource:
		return src.Description()
	case *namedKeyValues:
		return fmt.Sprintf("keyvalues name='%s'", src.name)
	default:
		return fmt.Sprintf("%T", s)
	}
}

// wrapErr attaches the resource chain, innermost first, unless the error
// is already wrapped.
func (l *sourceLoader) wrapErr(n *node, key string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	out := &LoadError{Key: key, Err: err}
	for cur := n; cur != nil; cur = cur.parent {
		out.Chain = append(out.Chain, describeSource(cur.source))
		if out.URI == "" {
			if r, ok := cur.source.(*Resource); ok {
				out.URI = r.URI
			}
		}
	}
	return out
}
