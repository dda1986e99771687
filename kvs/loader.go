package kvs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/vk/ezkv/internal/ctxlog"
	"github.com/vk/ezkv/media"
)

// LoaderFunc produces the key-values of one opened resource.
type LoaderFunc func(ctx context.Context) (KeyValues, error)

// LoaderFinder maps a normalized resource to a loader. A finder that
// does not recognize the resource reports false so lower-priority
// finders get a try.
type LoaderFinder interface {
	FindLoader(lctx *LoaderContext, r *Resource) (LoaderFunc, bool)
}

// LoaderFinderFunc adapts a function to LoaderFinder.
type LoaderFinderFunc func(lctx *LoaderContext, r *Resource) (LoaderFunc, bool)

func (fn LoaderFinderFunc) FindLoader(lctx *LoaderContext, r *Resource) (LoaderFunc, bool) {
	return fn(lctx, r)
}

// LoaderContext is what scheme handlers see: the system's registries and
// the variables chain in effect at load time.
type LoaderContext struct {
	System    *System
	Variables Variables
}

// Environment is a shorthand for the system environment.
func (c *LoaderContext) Environment() Environment {
	return c.System.Environment()
}

// RequireParser resolves the media for a resource: the explicit
// media-type hint first, then the URI path extension, then the flat
// properties default.
func (c *LoaderContext) RequireParser(r *Resource) (media.Media, error) {
	reg := c.System.Media()
	if r.MediaType != "" {
		m, ok := reg.ByMediaType(r.MediaType)
		if !ok {
			return media.Media{}, fmt.Errorf("%w: unknown media type %q", ErrMedia, r.MediaType)
		}
		return m, nil
	}
	if m, ok := reg.ByPath(r.uriPath()); ok {
		return m, nil
	}
	m, _ := reg.ByMediaType("properties")
	return m, nil
}

func parseInto(m media.Media, r io.Reader, b *Builder) error {
	err := m.Parser.Parse(r, func(k, v string) {
		b.Add(k, v)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMedia, err)
	}
	return nil
}

func parseStringInto(m media.Media, s string, b *Builder) error {
	return parseInto(m, strings.NewReader(s), b)
}

// defaultLoaderFinder dispatches the built-in schemes.
func defaultLoaderFinder(lctx *LoaderContext, r *Resource) (LoaderFunc, bool) {
	scheme := r.scheme()
	var load func(ctx context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error)
	switch {
	case scheme == "classpath":
		load = loadClasspath
	case scheme == "classpaths":
		load = loadClasspaths
	case scheme == "file":
		load = loadFile
	case scheme == "system":
		load = loadSystem
	case scheme == "env":
		load = loadEnv
	case scheme == "cmd":
		load = loadCmd
	case scheme == "stdin":
		load = loadStdin
	case scheme == "provider":
		load = loadProvider
	case scheme == "http", scheme == "https":
		load = loadURL
	case scheme == "null":
		load = loadNull
	case strings.HasPrefix(scheme, "profile."):
		load = loadProfiles
	default:
		return nil, false
	}
	return func(ctx context.Context) (KeyValues, error) {
		return load(ctx, lctx, r)
	}, true
}

func loadClasspath(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	u, err := r.uriParsed()
	if err != nil {
		return Empty(), err
	}
	parser, err := lctx.RequireParser(r)
	if err != nil {
		return Empty(), err
	}
	rc, err := lctx.Environment().Resources().Open(u.Host, u.Path)
	if err != nil {
		return Empty(), err
	}
	defer rc.Close()
	b := newBuilderForResource(r)
	if err := parseInto(parser, rc, b); err != nil {
		return Empty(), err
	}
	return b.Build(), nil
}

func loadClasspaths(ctx context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	path := r.uriPath()
	if path == "" {
		return Empty(), fmt.Errorf("%w: classpaths scheme requires a path, uri=%q", ErrResourceKeyInvalid, r.URI)
	}
	uris, err := lctx.Environment().Resources().List(path)
	if err != nil {
		return Empty(), err
	}
	ctxlog.FromContext(ctx).Debug("Enumerated classpath hits.", "path", path, "count", len(uris))
	var children []*Resource
	seen := map[string]bool{}
	i := 0
	for _, uri := range uris {
		if seen[uri] {
			continue
		}
		seen[uri] = true
		child := r.childOf(r.Name+strconv.Itoa(i), uri)
		// Fanned-out hits must not chain further loads.
		child.Flags |= LoadFlagNoLoadChildren
		children = append(children, child)
		i++
	}
	return childResources(r, children), nil
}

func loadFile(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	u, err := r.uriParsed()
	if err != nil {
		return Empty(), err
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return Empty(), fmt.Errorf("%w: file uri %q has no path", ErrResourceKeyInvalid, r.URI)
	}
	if !filepath.IsAbs(path) {
		if cwd := lctx.Environment().CWD(); cwd != "" {
			path = filepath.Join(cwd, path)
		}
	}
	parser, err := lctx.RequireParser(r)
	if err != nil {
		return Empty(), err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), fmt.Errorf("%w: file %q", ErrResourceNotFound, path)
		}
		return Empty(), err
	}
	defer f.Close()
	b := newBuilderForResource(r)
	if err := parseInto(parser, f, b); err != nil {
		return Empty(), err
	}
	return b.Build(), nil
}

func loadSystem(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	b := newBuilderForResource(r)
	b.AddMapSorted(lctx.Environment().SystemProps())
	return keyFromURI(lctx, r, b.Build())
}

func loadEnv(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	b := newBuilderForResource(r)
	b.AddMapSorted(lctx.Environment().Env())
	return keyFromURI(lctx, r, b.Build())
}

func loadCmd(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	b := newBuilderForResource(r)
	for _, arg := range lctx.Environment().MainArgs() {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		b.Add(k, v)
	}
	return keyFromURI(lctx, r, b.Build())
}

// stdinEnabled gates stdin loading so the scheduler never blocks on an
// absent pipe: the resource must opt in explicitly, or an enabling
// program argument must be present.
func stdinEnabled(lctx *LoaderContext, r *Resource) bool {
	if r.Parameters.boolParam("stdin") {
		return true
	}
	args := lctx.Environment().MainArgs()
	if arg, ok := r.Parameters.Get("stdin_arg"); ok {
		return slices.Contains(args, arg)
	}
	return slices.Contains(args, "--"+r.Name)
}

func loadStdin(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	if !stdinEnabled(lctx, r) {
		return Empty(), fmt.Errorf("%w: stdin not enabled for resource %q", ErrResourceNotFound, r.Name)
	}
	b := newBuilderForResource(r)
	path := r.uriPath()
	if path == "" {
		parser, err := lctx.RequireParser(r)
		if err != nil {
			return Empty(), err
		}
		if err := parseInto(parser, lctx.Environment().Stdin(), b); err != nil {
			return Empty(), err
		}
		return b.Build(), nil
	}
	data, err := io.ReadAll(lctx.Environment().Stdin())
	if err != nil {
		return Empty(), err
	}
	b.Add(path, string(data))
	return b.Build(), nil
}

func loadProvider(ctx context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	providers := lctx.System.Providers()
	if len(providers) == 0 {
		return Empty(), fmt.Errorf("%w: no providers registered", ErrResourceNotFound)
	}
	path := strings.TrimSpace(r.uriPath())
	if path == "" {
		var children []*Resource
		for i, p := range providers {
			child := r.childOf(p.Name()+strconv.Itoa(i), "provider:///"+p.Name())
			children = append(children, child)
		}
		return childResources(r, children), nil
	}
	for _, p := range providers {
		if p.Name() != path {
			continue
		}
		b := newBuilderForResource(r)
		if err := p.Provide(ctx, b); err != nil {
			return Empty(), err
		}
		return b.Build(), nil
	}
	return Empty(), fmt.Errorf("%w: provider %q", ErrResourceNotFound, path)
}

func loadProfiles(_ context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	rest := strings.TrimPrefix(r.URI, "profile.")
	profileCSV, ok := r.Parameters.Get("profile")
	if !ok {
		_, profileCSV, ok = lctx.Variables.FindEntry("profile", "profile.active", "profile.default")
	}
	if !ok {
		return Empty(), fmt.Errorf("%w: profile parameter is required for %q", ErrResourceNotFound, r.URI)
	}
	if !strings.Contains(rest, "__PROFILE__") {
		return Empty(), fmt.Errorf("%w: %q needs a __PROFILE__ token", ErrResourceKeyInvalid, r.URI)
	}
	var profiles []string
	for _, p := range parseCSV(profileCSV) {
		if !slices.Contains(profiles, p) {
			profiles = append(profiles, p)
		}
	}
	lctx.Environment().Logger().Info(fmt.Sprintf("Found profiles: %v", profiles))
	var children []*Resource
	for i, p := range profiles {
		uri := strings.ReplaceAll(rest, "__PROFILE__", p)
		children = append(children, r.childOf(r.Name+strconv.Itoa(i), uri))
	}
	return childResources(r, children), nil
}

func loadURL(ctx context.Context, lctx *LoaderContext, r *Resource) (KeyValues, error) {
	parser, err := lctx.RequireParser(r)
	if err != nil {
		return Empty(), err
	}
	ctxlog.FromContext(ctx).Debug("Fetching url resource.", "url", r.URI)
	res, err := lctx.System.httpClient.R().SetContext(ctx).Get(r.URI)
	if err != nil {
		return Empty(), err
	}
	if res.StatusCode() == 404 {
		return Empty(), fmt.Errorf("%w: %s", ErrResourceNotFound, r.URI)
	}
	if res.IsError() {
		return Empty(), fmt.Errorf("%w: fetch %s: status %d", ErrMedia, r.URI, res.StatusCode())
	}
	b := newBuilderForResource(r)
	if err := parseInto(parser, bytes.NewReader(res.Bytes()), b); err != nil {
		return Empty(), err
	}
	return b.Build(), nil
}

func loadNull(_ context.Context, _ *LoaderContext, r *Resource) (KeyValues, error) {
	return Empty(), fmt.Errorf("null resource not allowed: %s", r.URI)
}

// keyFromURI implements key-in-URI mode for the enumerating schemes: a
// non-empty path selects a single key whose value is re-parsed with the
// resource's media.
func keyFromURI(lctx *LoaderContext, r *Resource, kvs KeyValues) (KeyValues, error) {
	path := r.uriPath()
	if path == "" {
		return kvs, nil
	}
	selected, found := kvs.Filter(func(kv KeyValue) bool {
		return kv.Key == path
	}).Last()
	if !found {
		return Empty(), fmt.Errorf("%w: key %q in uri %q", ErrResourceNotFound, path, r.URI)
	}
	lctx.Environment().Logger().Debug(fmt.Sprintf("Using key specified in URI path. key: %s uri: %s", path, r.URI))
	parser, err := lctx.RequireParser(r)
	if err != nil {
		return Empty(), err
	}
	b := newBuilderForResource(r)
	if err := parseStringInto(parser, selected.Expanded, b); err != nil {
		return Empty(), err
	}
	return b.Build(), nil
}

// childResources renders synthesized children as DSL keys so they travel
// through the scheduler like declared resources, keeping logging and
// flag handling uniform.
func childResources(parent *Resource, children []*Resource) KeyValues {
	b := newBuilderForResource(parent)
	for _, c := range children {
		formatResource(c, func(k, v string) {
			b.Add(k, v)
		})
	}
	return b.Build()
}
