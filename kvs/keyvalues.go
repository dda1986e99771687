package kvs

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/vk/ezkv/media"
)

// KeyValues is an ordered sequence of KeyValue. Duplicate keys are
// preserved; they carry order semantics (last wins when collapsed to a
// map). Map, Filter and FlatMap are lazy; Memoize materializes the
// sequence so it can be iterated repeatedly at no cost.
//
// A KeyValues must always be restartable: iterating All twice yields the
// same entries.
type KeyValues struct {
	seq      iter.Seq[KeyValue]
	memoized bool
}

// Empty returns a KeyValues with no entries.
func Empty() KeyValues {
	return NewKeyValues(nil)
}

// Of returns a KeyValues over the given entries.
func Of(entries ...KeyValue) KeyValues {
	return NewKeyValues(entries)
}

// NewKeyValues returns a memoized KeyValues backed by the given slice.
// The slice is not copied; callers hand over ownership.
func NewKeyValues(entries []KeyValue) KeyValues {
	return KeyValues{seq: slices.Values(entries), memoized: true}
}

func lazyKeyValues(seq iter.Seq[KeyValue]) KeyValues {
	return KeyValues{seq: seq}
}

// All returns the entries in order.
func (k KeyValues) All() iter.Seq[KeyValue] {
	if k.seq == nil {
		return func(yield func(KeyValue) bool) {}
	}
	return k.seq
}

// Map lazily applies fn to every entry.
func (k KeyValues) Map(fn func(KeyValue) KeyValue) KeyValues {
	return lazyKeyValues(func(yield func(KeyValue) bool) {
		for kv := range k.All() {
			if !yield(fn(kv)) {
				return
			}
		}
	})
}

// Filter lazily retains entries matching pred.
func (k KeyValues) Filter(pred func(KeyValue) bool) KeyValues {
	return lazyKeyValues(func(yield func(KeyValue) bool) {
		for kv := range k.All() {
			if pred(kv) && !yield(kv) {
				return
			}
		}
	})
}

// FlatMap lazily replaces every entry with the entries fn returns for it.
func (k KeyValues) FlatMap(fn func(KeyValue) KeyValues) KeyValues {
	return lazyKeyValues(func(yield func(KeyValue) bool) {
		for kv := range k.All() {
			for out := range fn(kv).All() {
				if !yield(out) {
					return
				}
			}
		}
	})
}

// Memoize materializes the sequence. Memoizing an already-memoized
// KeyValues is a no-op.
func (k KeyValues) Memoize() KeyValues {
	if k.memoized {
		return k
	}
	return NewKeyValues(k.Slice())
}

// Slice collects the entries into a new slice.
func (k KeyValues) Slice() []KeyValue {
	var out []KeyValue
	for kv := range k.All() {
		out = append(out, kv)
	}
	return out
}

// Len counts the entries.
func (k KeyValues) Len() int {
	n := 0
	for range k.All() {
		n++
	}
	return n
}

// Last returns the final entry, if any.
func (k KeyValues) Last() (KeyValue, bool) {
	var last KeyValue
	found := false
	for kv := range k.All() {
		last = kv
		found = true
	}
	return last, found
}

// ToMap collapses the sequence to a key -> expanded-value map; for
// duplicate keys the last entry wins.
func (k KeyValues) ToMap() map[string]string {
	out := map[string]string{}
	for kv := range k.All() {
		out[kv.Key] = kv.Expanded
	}
	return out
}

// Expand eagerly resolves ${...} references remaining in every entry's
// Expanded text using the variables chain; Raw is unchanged. This is the
// global form: entries flagged SENSITIVE or NO_INTERPOLATION keep their
// value verbatim. Unresolvable references are left in place.
func (k KeyValues) Expand(vars Variables) KeyValues {
	out, err := expandKeyValues(k.Slice(), vars, false, false)
	if err != nil {
		// Lenient expansion only errors on depth overflow; surface the
		// entry untouched rather than dropping data.
		return k.Memoize()
	}
	return NewKeyValues(out)
}

// Interpolate is Expand followed by ToMap.
func (k KeyValues) Interpolate(vars Variables) map[string]string {
	return k.Expand(vars).ToMap()
}

// Redact replaces the expanded value of every sensitive entry with
// RedactedValue, so any printer or formatter downstream can no longer
// observe it.
func (k KeyValues) Redact() KeyValues {
	return k.Map(func(kv KeyValue) KeyValue {
		if kv.Sensitive() {
			kv.Raw = RedactedValue
			kv.Expanded = RedactedValue
		}
		return kv
	})
}

// Format writes the entries, in order, with the given media's formatter.
func (k KeyValues) Format(m media.Media) (string, error) {
	var pairs []media.Pair
	for kv := range k.All() {
		pairs = append(pairs, media.Pair{Key: kv.Key, Value: kv.Expanded})
	}
	return media.FormatString(m, pairs)
}

// String prints the entries one per line in properties form with
// sensitive values redacted.
func (k KeyValues) String() string {
	s, err := k.Redact().Format(media.Properties())
	if err != nil {
		s = fmt.Sprintf("<error: %v>", err)
	}
	var sb strings.Builder
	sb.WriteString("KeyValues[\n")
	sb.WriteString(s)
	sb.WriteString("]")
	return sb.String()
}

// Builder accumulates key-values, stamping each with provenance and a
// 1-based index. Used by scheme loaders and providers.
type Builder struct {
	uri   string
	ref   *KeyValue
	flags Flag
	index int
	out   []KeyValue
}

// NewBuilder returns a Builder with no provenance.
func NewBuilder() *Builder {
	return &Builder{uri: nullSourceURI}
}

func newBuilderForResource(r *Resource) *Builder {
	return &Builder{uri: r.URI, ref: r.Reference}
}

// Add appends one key-value.
func (b *Builder) Add(key, value string) *Builder {
	b.index++
	kv := KeyValue{
		Key:         key,
		Raw:         value,
		Expanded:    value,
		OriginalKey: key,
		Source:      Source{URI: b.uri, Reference: b.ref, Index: b.index},
		Flags:       b.flags,
	}
	b.out = append(b.out, kv)
	return b
}

// AddMapSorted appends every entry of m in sorted-key order, the only
// deterministic order a Go map offers.
func (b *Builder) AddMapSorted(m map[string]string) *Builder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.Add(k, m[k])
	}
	return b
}

// Build returns the accumulated entries.
func (b *Builder) Build() KeyValues {
	return NewKeyValues(slices.Clone(b.out))
}
