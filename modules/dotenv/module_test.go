package dotenv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/ezkv/media"
)

func TestParse(t *testing.T) {
	doc := strings.Join([]string{
		"# full line comment",
		"",
		"BASIC=basic",
		"export EXPORTED=ok",
		"EMPTY=",
		"SINGLE_QUOTES='single quotes'",
		"SINGLE_QUOTES_SPACED='    single quotes    '",
		`DOUBLE_QUOTES="double quotes"`,
		"BACKTICKS=`backticks`",
		`EXPAND_NEWLINES="expand\nnew\nlines"`,
		`DONT_EXPAND_UNQUOTED=dontexpand\nnewlines`,
		`DONT_EXPAND_SQUOTED='dontexpand\nnewlines'`,
		"INLINE_COMMENTS=inline comments # after",
		`INLINE_COMMENTS_DOUBLE_QUOTES="inline comments outside of #doublequotes" # comment`,
		"TRIMMED=   some spaced out string   ",
		"noequals",
	}, "\n")
	pairs, err := media.ParseString(Media(), doc)
	require.NoError(t, err)

	m := map[string]string{}
	var keys []string
	for _, p := range pairs {
		m[p.Key] = p.Value
		keys = append(keys, p.Key)
	}
	assert.NotContains(t, keys, "noequals")
	assert.Equal(t, "basic", m["BASIC"])
	assert.Equal(t, "ok", m["EXPORTED"])
	assert.Equal(t, "", m["EMPTY"])
	assert.Equal(t, "single quotes", m["SINGLE_QUOTES"])
	assert.Equal(t, "    single quotes    ", m["SINGLE_QUOTES_SPACED"])
	assert.Equal(t, "double quotes", m["DOUBLE_QUOTES"])
	assert.Equal(t, "backticks", m["BACKTICKS"])
	assert.Equal(t, "expand\nnew\nlines", m["EXPAND_NEWLINES"])
	assert.Equal(t, `dontexpand\nnewlines`, m["DONT_EXPAND_UNQUOTED"])
	assert.Equal(t, `dontexpand\nnewlines`, m["DONT_EXPAND_SQUOTED"])
	assert.Equal(t, "inline comments", m["INLINE_COMMENTS"])
	assert.Equal(t, "inline comments outside of #doublequotes", m["INLINE_COMMENTS_DOUBLE_QUOTES"])
	assert.Equal(t, "some spaced out string", m["TRIMMED"])
}

func TestParseOrderPreserved(t *testing.T) {
	pairs, err := media.ParseString(Media(), "A=1\nB=2\nA=3\n")
	require.NoError(t, err)
	assert.Equal(t, []media.Pair{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}, {Key: "A", Value: "3"}}, pairs)
}
