package kvs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
)

// safeBuffer is a thread-safe buffer for capturing log output in tests.
type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// memFinder serves the mem: scheme from a fixture map of URI -> document,
// parsed with the resource's media. It doubles as the extension-point
// test: it is registered through the ordinary finder registration API.
type memFinder map[string]string

func (m memFinder) FindLoader(lctx *LoaderContext, r *Resource) (LoaderFunc, bool) {
	if r.scheme() != "mem" {
		return nil, false
	}
	return func(ctx context.Context) (KeyValues, error) {
		doc, ok := m[r.URI]
		if !ok {
			return Empty(), fmt.Errorf("%w: %s", ErrResourceNotFound, r.URI)
		}
		parser, err := lctx.RequireParser(r)
		if err != nil {
			return Empty(), err
		}
		b := newBuilderForResource(r)
		if err := parseStringInto(parser, doc, b); err != nil {
			return Empty(), err
		}
		return b.Build(), nil
	}, true
}

// testEnv is the knobs a scheduler test can turn.
type testEnv struct {
	args    []string
	props   map[string]string
	environ map[string]string
	stdin   string
	roots   []FSRoot
}

// newTestSystem builds a System over an isolated fake environment plus a
// mem: fixture finder, and returns the log buffer for assertions.
func newTestSystem(t *testing.T, fixtures map[string]string, env testEnv, configure func(*SystemBuilder)) (*System, *safeBuffer) {
	t.Helper()
	buf := &safeBuffer{}
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	environment := &DefaultEnvironment{
		Args:    env.args,
		Props:   env.props,
		Environ: env.environ,
		In:      strings.NewReader(env.stdin),
		Dir:     ".",
		Loader:  NewFSResourceLoader(env.roots...),
		Log:     logger,
	}
	if environment.Args == nil {
		environment.Args = []string{}
	}
	if environment.Environ == nil {
		environment.Environ = map[string]string{}
	}
	b := NewSystemBuilder().
		Environment(environment).
		LoaderFinder(memFinder(fixtures))
	if configure != nil {
		configure(b)
	}
	system := b.Build()
	t.Cleanup(func() { _ = system.Close() })
	return system, buf
}

// fsRoot builds one named in-memory classpath root.
func fsRoot(name string, files map[string]string) FSRoot {
	m := fstest.MapFS{}
	for path, data := range files {
		m[path] = &fstest.MapFile{Data: []byte(data)}
	}
	return FSRoot{Name: name, FS: m}
}

// pairsOf flattens a result to "k=v" strings for order-sensitive
// assertions.
func pairsOf(kvs KeyValues) []string {
	var out []string
	for kv := range kvs.All() {
		out = append(out, kv.Key+"="+kv.Expanded)
	}
	return out
}
