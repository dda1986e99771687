package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAll(t *testing.T, m Media, doc string) []Pair {
	t.Helper()
	pairs, err := ParseString(m, doc)
	require.NoError(t, err)
	return pairs
}

func TestPropertiesParse(t *testing.T) {
	doc := strings.Join([]string{
		"# comment",
		"! also a comment",
		"",
		"simple=value",
		"colon:value2",
		"spaced value3",
		"trimmed =  value4",
		"multi=line one \\",
		"    line two",
		"escaped\\=key=v",
		"tabs=a\\tb",
		"unicode=\\u0041",
		"empty=",
		"bare",
	}, "\n")
	pairs := parseAll(t, Properties(), doc)
	assert.Equal(t, []Pair{
		{"simple", "value"},
		{"colon", "value2"},
		{"spaced", "value3"},
		{"trimmed", "value4"},
		{"multi", "line one line two"},
		{"escaped=key", "v"},
		{"tabs", "a\tb"},
		{"unicode", "A"},
		{"empty", ""},
		{"bare", ""},
	}, pairs)
}

func TestPropertiesOrderAndDuplicates(t *testing.T) {
	pairs := parseAll(t, Properties(), "a=1\nb=2\na=3\n")
	assert.Equal(t, []Pair{{"a", "1"}, {"b", "2"}, {"a", "3"}}, pairs)
}

func TestPropertiesRoundTrip(t *testing.T) {
	in := []Pair{
		{"plain", "value"},
		{"needs=escape:now", "x"},
		{"key", "line1\nline2\ttab"},
		{"unicode", "é"},
		{"space key", " leading space"},
	}
	out, err := FormatString(Properties(), in)
	require.NoError(t, err)
	back := parseAll(t, Properties(), out)
	assert.Equal(t, in, back)
}

func TestURLEncodedParse(t *testing.T) {
	pairs := parseAll(t, URLEncoded(), "a=1&b=hello%20world&=skipme&c&a=2")
	assert.Equal(t, []Pair{
		{"a", "1"},
		{"b", "hello world"},
		{"c", ""},
		{"a", "2"},
	}, pairs)
}

func TestURLEncodedFormat(t *testing.T) {
	out, err := FormatString(URLEncoded(), []Pair{{"a", "1"}, {"b", "x y"}})
	require.NoError(t, err)
	assert.Equal(t, "a=1&b=x+y", out)
}

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	byType, ok := r.ByMediaType("properties")
	require.True(t, ok)
	assert.Equal(t, "text/x-properties", byType.MediaType)

	_, ok = r.ByMediaType("application/x-www-form-urlencoded")
	assert.True(t, ok)

	byExt, ok := r.ByExt(".properties")
	require.True(t, ok)
	assert.Equal(t, "text/x-properties", byExt.MediaType)

	byPath, ok := r.ByPath("/conf/app.properties")
	require.True(t, ok)
	assert.Equal(t, "text/x-properties", byPath.MediaType)

	_, ok = r.ByPath("/conf/app")
	assert.False(t, ok)

	_, ok = r.ByMediaType("application/nope")
	assert.False(t, ok)
}

func TestRegistryOrderOverride(t *testing.T) {
	r := NewRegistry()
	override := Media{MediaType: "text/x-custom", Aliases: []string{"properties"}, FileExt: "properties"}
	// Negative order binds before the built-ins.
	r.AddOrdered(override, BuiltinOrderStart-1)

	m, ok := r.ByMediaType("properties")
	require.True(t, ok)
	assert.Equal(t, "text/x-custom", m.MediaType)
}
