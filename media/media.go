// Package media defines the parser/formatter contract for key-value
// documents and a small registry for finding a media by type string, file
// extension, or URI.
//
// Two media are built in: the flat properties format and the URL-encoded
// form format. Everything else (JSON, dotenv, HCL, XML) lives in optional
// modules that conform to the same contract.
package media

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Pair is one ordered key/value produced by a Parser or consumed by a
// Formatter. Order is significant and duplicates are allowed.
type Pair struct {
	Key   string
	Value string
}

// Parser reads a document and emits pairs in document order.
type Parser interface {
	Parse(r io.Reader, emit func(key, value string)) error
}

// Formatter writes pairs in order. No header or trailer is emitted.
type Formatter interface {
	Format(w io.Writer, pairs []Pair) error
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(r io.Reader, emit func(key, value string)) error

func (f ParserFunc) Parse(r io.Reader, emit func(key, value string)) error {
	return f(r, emit)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(w io.Writer, pairs []Pair) error

func (f FormatterFunc) Format(w io.Writer, pairs []Pair) error {
	return f(w, pairs)
}

// Media couples a parser and formatter with the identifiers the registry
// matches on. Formatter may be nil for parse-only media.
type Media struct {
	// MediaType is the canonical media-type string, e.g. "text/x-properties".
	MediaType string
	// Aliases are additional strings accepted by ByMediaType lookups,
	// e.g. "properties".
	Aliases []string
	// FileExt is the bare file extension (no dot) this media claims, empty
	// if extension sniffing should never select it.
	FileExt string
	Parser  Parser
	Formatter Formatter
}

func (m Media) matchesType(mediaType string) bool {
	if strings.EqualFold(m.MediaType, mediaType) {
		return true
	}
	for _, a := range m.Aliases {
		if strings.EqualFold(a, mediaType) {
			return true
		}
	}
	return false
}

// ParseString parses an in-memory document.
func ParseString(m Media, s string) ([]Pair, error) {
	var pairs []Pair
	err := m.Parser.Parse(strings.NewReader(s), func(k, v string) {
		pairs = append(pairs, Pair{Key: k, Value: v})
	})
	return pairs, err
}

// FormatString formats pairs to a string.
func FormatString(m Media, pairs []Pair) (string, error) {
	if m.Formatter == nil {
		return "", fmt.Errorf("media %s has no formatter", m.MediaType)
	}
	var sb strings.Builder
	if err := m.Formatter.Format(&sb, pairs); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type entry struct {
	media Media
	order int
	seq   int
}

// Registry resolves media by type, extension, or URI. Entries with lower
// order bind first; ties keep registration order.
type Registry struct {
	entries []entry
	seq     int
}

// BuiltinOrderStart is the order built-in registrations begin at. User
// extensions default to 0 and may go negative to take precedence.
const BuiltinOrderStart = -127

// NewRegistry returns a registry preloaded with the built-in media.
func NewRegistry() *Registry {
	r := &Registry{}
	r.AddOrdered(Properties(), BuiltinOrderStart)
	r.AddOrdered(URLEncoded(), BuiltinOrderStart+1)
	return r
}

// Add registers m at the default user order of 0.
func (r *Registry) Add(m Media) {
	r.AddOrdered(m, 0)
}

// AddOrdered registers m with an explicit order.
func (r *Registry) AddOrdered(m Media, order int) {
	r.entries = append(r.entries, entry{media: m, order: order, seq: r.seq})
	r.seq++
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].order != r.entries[j].order {
			return r.entries[i].order < r.entries[j].order
		}
		return r.entries[i].seq < r.entries[j].seq
	})
}

// ByMediaType finds a media by canonical type or alias.
func (r *Registry) ByMediaType(mediaType string) (Media, bool) {
	for _, e := range r.entries {
		if e.media.matchesType(mediaType) {
			return e.media, true
		}
	}
	return Media{}, false
}

// ByExt finds a media by bare file extension.
func (r *Registry) ByExt(ext string) (Media, bool) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return Media{}, false
	}
	for _, e := range r.entries {
		if e.media.FileExt != "" && strings.EqualFold(e.media.FileExt, ext) {
			return e.media, true
		}
	}
	return Media{}, false
}

// ByPath finds a media by the extension of a URI path.
func (r *Registry) ByPath(p string) (Media, bool) {
	return r.ByExt(path.Ext(p))
}
