package kvs

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/vk/ezkv/media"
	"resty.dev/v3"
)

// BuiltinOrderStart is where built-in loader finders and filters are
// registered. User extensions default to order 0; a negative order takes
// precedence over later-registered peers.
const BuiltinOrderStart = -127

// Provider supplies key-values programmatically, addressed by the
// provider:///<name> scheme. An empty provider path loads every
// registered provider in registration order.
type Provider interface {
	Name() string
	Provide(ctx context.Context, b *Builder) error
}

// Module is a self-registering extension: media plug-ins and similar
// optional packages expose one and callers pass it to SystemBuilder.Use.
type Module interface {
	Register(b *SystemBuilder)
}

type orderedLoaderFinder struct {
	finder LoaderFinder
	order  int
	seq    int
}

type orderedFilter struct {
	filter KeyValuesFilter
	order  int
	seq    int
}

// System is the entry point: an immutable snapshot of the environment
// and the media/loader/filter/provider registries, captured at build
// time. A built System is reentrant across independent loads.
type System struct {
	env           Environment
	media         *media.Registry
	loaderFinders []LoaderFinder
	filters       []KeyValuesFilter
	providers     []Provider
	httpClient    *resty.Client
}

// DefaultSystem returns a System over the process environment with only
// the built-ins registered.
func DefaultSystem() *System {
	return NewSystemBuilder().Build()
}

// Environment returns the environment collaborator.
func (s *System) Environment() Environment {
	return s.env
}

// Media returns the media registry.
func (s *System) Media() *media.Registry {
	return s.media
}

// Providers returns the registered providers in registration order.
func (s *System) Providers() []Provider {
	return s.providers
}

// Close releases resources held by the system, such as the HTTP client's
// idle connections.
func (s *System) Close() error {
	if s.httpClient != nil {
		return s.httpClient.Close()
	}
	return nil
}

// Loader starts building one load over this system.
func (s *System) Loader() *LoaderBuilder {
	return &LoaderBuilder{system: s}
}

// SystemBuilder assembles a System. Registrations carry an integer
// order; lower orders bind first and the built-ins start at
// BuiltinOrderStart.
type SystemBuilder struct {
	environment   Environment
	mediaEntries  []mediaEntry
	loaderFinders []orderedLoaderFinder
	filters       []orderedFilter
	providers     []Provider
	finderSeq     int
	filterSeq     int
}

type mediaEntry struct {
	m     media.Media
	order int
}

// NewSystemBuilder returns a builder preloaded with the built-in loader
// finders, filters, and media.
func NewSystemBuilder() *SystemBuilder {
	b := &SystemBuilder{}
	b.LoaderFinderOrdered(LoaderFinderFunc(defaultLoaderFinder), BuiltinOrderStart)
	for i, f := range builtinFilters() {
		b.FilterOrdered(f, BuiltinOrderStart+i)
	}
	return b
}

// Environment sets the environment collaborator.
func (b *SystemBuilder) Environment(env Environment) *SystemBuilder {
	b.environment = env
	return b
}

// Media registers an additional media at the default user order.
func (b *SystemBuilder) Media(m media.Media) *SystemBuilder {
	return b.MediaOrdered(m, 0)
}

// MediaOrdered registers an additional media with an explicit order.
func (b *SystemBuilder) MediaOrdered(m media.Media, order int) *SystemBuilder {
	b.mediaEntries = append(b.mediaEntries, mediaEntry{m: m, order: order})
	return b
}

// LoaderFinder registers a loader finder at the default user order.
func (b *SystemBuilder) LoaderFinder(f LoaderFinder) *SystemBuilder {
	return b.LoaderFinderOrdered(f, 0)
}

// LoaderFinderOrdered registers a loader finder with an explicit order.
func (b *SystemBuilder) LoaderFinderOrdered(f LoaderFinder, order int) *SystemBuilder {
	b.loaderFinders = append(b.loaderFinders, orderedLoaderFinder{finder: f, order: order, seq: b.finderSeq})
	b.finderSeq++
	return b
}

// Filter registers a filter at the default user order.
func (b *SystemBuilder) Filter(f KeyValuesFilter) *SystemBuilder {
	return b.FilterOrdered(f, 0)
}

// FilterOrdered registers a filter with an explicit order.
func (b *SystemBuilder) FilterOrdered(f KeyValuesFilter, order int) *SystemBuilder {
	b.filters = append(b.filters, orderedFilter{filter: f, order: order, seq: b.filterSeq})
	b.filterSeq++
	return b
}

// Provider registers a provider. A duplicate name is a programmer error
// and panics.
func (b *SystemBuilder) Provider(p Provider) *SystemBuilder {
	for _, existing := range b.providers {
		if existing.Name() == p.Name() {
			panic(fmt.Sprintf("provider with name '%s' already registered", p.Name()))
		}
	}
	b.providers = append(b.providers, p)
	return b
}

// Use applies a self-registering module.
func (b *SystemBuilder) Use(modules ...Module) *SystemBuilder {
	for _, m := range modules {
		m.Register(b)
	}
	return b
}

// Build captures the registries into an immutable System.
func (b *SystemBuilder) Build() *System {
	env := b.environment
	if env == nil {
		env = &DefaultEnvironment{}
	}
	reg := media.NewRegistry()
	for _, e := range b.mediaEntries {
		reg.AddOrdered(e.m, e.order)
	}
	finders := make([]orderedLoaderFinder, len(b.loaderFinders))
	copy(finders, b.loaderFinders)
	sort.SliceStable(finders, func(i, j int) bool {
		if finders[i].order != finders[j].order {
			return finders[i].order < finders[j].order
		}
		return finders[i].seq < finders[j].seq
	})
	filters := make([]orderedFilter, len(b.filters))
	copy(filters, b.filters)
	sort.SliceStable(filters, func(i, j int) bool {
		if filters[i].order != filters[j].order {
			return filters[i].order < filters[j].order
		}
		return filters[i].seq < filters[j].seq
	})
	s := &System{
		env:        env,
		media:      reg,
		providers:  append([]Provider(nil), b.providers...),
		httpClient: resty.New(),
	}
	for _, f := range finders {
		s.loaderFinders = append(s.loaderFinders, f.finder)
	}
	for _, f := range filters {
		s.filters = append(s.filters, f.filter)
	}
	return s
}

// defaultResourceURI loads when a loader declares no sources at all.
const defaultResourceURI = "classpath:/ezkv.properties"

// LoaderBuilder assembles the root sources and variables of one load.
type LoaderBuilder struct {
	system  *System
	sources []namedSource
	vars    []Variables
	counter int
}

// Add declares a resource by URI under a generated name.
func (b *LoaderBuilder) Add(uri string) *LoaderBuilder {
	name := "root" + strconv.Itoa(b.counter)
	b.counter++
	return b.AddResource(MustResource(name, uri))
}

// AddResource declares a resource.
func (b *LoaderBuilder) AddResource(r *Resource) *LoaderBuilder {
	b.sources = append(b.sources, r)
	return b
}

// AddNamed declares an inline, already-built stream under a name.
func (b *LoaderBuilder) AddNamed(name string, kvs KeyValues) *LoaderBuilder {
	b.sources = append(b.sources, &namedKeyValues{name: name, kvs: kvs})
	return b
}

// AddVariables appends a lookup to the root variables chain. Earlier
// additions win.
func (b *LoaderBuilder) AddVariables(v Variables) *LoaderBuilder {
	b.vars = append(b.vars, v)
	return b
}

// AddVariablesMap appends a map lookup to the root variables chain.
func (b *LoaderBuilder) AddVariablesMap(m map[string]string) *LoaderBuilder {
	return b.AddVariables(MapVariables(m))
}

// Load runs the load. With no declared sources the default resource is
// loaded, tolerating absence.
func (b *LoaderBuilder) Load(ctx context.Context) (KeyValues, error) {
	sources := b.sources
	if len(sources) == 0 {
		r := MustResource("default", defaultResourceURI)
		r.Flags |= LoadFlagNoRequire
		sources = []namedSource{r}
	}
	loader := newSourceLoader(b.system, ChainVariables(b.vars...))
	kvs, err := loader.load(ctx, sources)
	if err != nil {
		b.system.Environment().Logger().Fatal(err)
		return Empty(), err
	}
	return kvs, nil
}
