package kvs

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/vk/ezkv/internal/fsutil"
)

// Environment abstracts every system-level interaction the loader
// performs: process arguments, system properties, environment variables,
// standard input, the working directory, the classpath-like resource
// roots, a random source, and logging. The core touches the outside
// world only through this interface, which is what makes loads
// reproducible in tests.
type Environment interface {
	MainArgs() []string
	SystemProps() map[string]string
	Env() map[string]string
	Stdin() io.Reader
	// CWD returns the directory relative file URIs resolve against, or
	// "" to use paths as given.
	CWD() string
	Resources() ResourceLoader
	Rand() *rand.Rand
	Logger() Logger
}

// ResourceLoader opens and enumerates classpath-like resources.
type ResourceLoader interface {
	// Open opens path inside the named root; an empty root searches all
	// roots in order. A missing entry wraps ErrResourceNotFound.
	Open(root, path string) (io.ReadCloser, error)
	// List returns one classpath URI per root containing path, in root
	// order.
	List(path string) ([]string, error)
}

// FSRoot is one named fs.FS a resource loader draws from, analogous to
// one classpath entry.
type FSRoot struct {
	Name string
	FS   fs.FS
}

type fsResourceLoader struct {
	roots []FSRoot
}

// NewFSResourceLoader builds a ResourceLoader over ordered fs.FS roots.
func NewFSResourceLoader(roots ...FSRoot) ResourceLoader {
	return &fsResourceLoader{roots: roots}
}

func (l *fsResourceLoader) Open(root, path string) (io.ReadCloser, error) {
	name := fsutil.Normalize(path)
	for _, r := range l.roots {
		if root != "" && r.Name != root {
			continue
		}
		if !fsutil.Exists(r.FS, name) {
			continue
		}
		f, err := r.FS.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open %q in root %q: %w", path, r.Name, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: classpath entry %q (root %q)", ErrResourceNotFound, path, root)
}

func (l *fsResourceLoader) List(path string) ([]string, error) {
	name := fsutil.Normalize(path)
	var out []string
	for _, r := range l.roots {
		if fsutil.Exists(r.FS, name) {
			out = append(out, "classpath://"+r.Name+"/"+name)
		}
	}
	return out, nil
}

// Logger receives the structured load events of §external-interfaces.
type Logger interface {
	Debug(message string)
	Info(message string)
	Warn(message string)
	Load(r *Resource)
	Loaded(r *Resource)
	Missing(r *Resource, cause error)
	Fatal(err error)
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to the Logger event interface.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(message string) { s.l.Debug(message) }
func (s *slogLogger) Info(message string)  { s.l.Info(message) }
func (s *slogLogger) Warn(message string)  { s.l.Warn(message) }

func (s *slogLogger) Load(r *Resource) {
	s.l.Debug("Loading resource.", resourceAttrs(r)...)
}

func (s *slogLogger) Loaded(r *Resource) {
	s.l.Info("Loaded resource.", resourceAttrs(r)...)
}

func (s *slogLogger) Missing(r *Resource, cause error) {
	attrs := append(resourceAttrs(r), "cause", cause)
	s.l.Debug("Resource missing, tolerated.", attrs...)
}

func (s *slogLogger) Fatal(err error) {
	s.l.Error("Load failed.", "error", err)
}

func resourceAttrs(r *Resource) []any {
	attrs := []any{"uri", r.URI}
	if r.Flags != 0 {
		attrs = append(attrs, "flags", r.Flags.String())
	}
	if ref := r.Reference; ref != nil {
		attrs = append(attrs, "key", ref.Key, "ref", ref.Source.URI)
	}
	return attrs
}

// DefaultEnvironment is the stock Environment. Zero value fields fall
// back to the process: os.Environ, os.Stdin, the working directory, and
// slog.Default. Tests override exactly the fields they care about.
type DefaultEnvironment struct {
	Args    []string
	Props   map[string]string
	Environ map[string]string
	In      io.Reader
	Dir     string
	Loader  ResourceLoader
	Random  *rand.Rand
	Log     Logger
}

func (e *DefaultEnvironment) MainArgs() []string {
	if e.Args != nil {
		return e.Args
	}
	return os.Args[1:]
}

func (e *DefaultEnvironment) SystemProps() map[string]string {
	if e.Props != nil {
		return e.Props
	}
	return map[string]string{}
}

func (e *DefaultEnvironment) Env() map[string]string {
	if e.Environ != nil {
		return e.Environ
	}
	out := map[string]string{}
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			out[k] = v
		}
	}
	return out
}

func (e *DefaultEnvironment) Stdin() io.Reader {
	if e.In != nil {
		return e.In
	}
	return os.Stdin
}

func (e *DefaultEnvironment) CWD() string {
	if e.Dir != "" {
		return e.Dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func (e *DefaultEnvironment) Resources() ResourceLoader {
	if e.Loader != nil {
		return e.Loader
	}
	return NewFSResourceLoader()
}

func (e *DefaultEnvironment) Rand() *rand.Rand {
	if e.Random != nil {
		return e.Random
	}
	e.Random = rand.New(rand.NewSource(time.Now().UnixNano()))
	return e.Random
}

func (e *DefaultEnvironment) Logger() Logger {
	if e.Log != nil {
		return e.Log
	}
	return NewSlogLogger(slog.Default())
}
