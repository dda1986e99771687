package interp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vars(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestExpand(t *testing.T) {
	lookup := vars(map[string]string{
		"user":      "kenny",
		"home":      "/home/${user}",
		"which":     "user",
		"empty":     "",
		"port.pref": "1",
	})

	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain text", "hello", "hello"},
		{"simple", "hi ${user}", "hi kenny"},
		{"dollar escape", "cost $$5", "cost $5"},
		{"lone dollar", "a$b", "a$b"},
		{"default taken", "${missing:-fallback}", "fallback"},
		{"default ignored", "${user:-fallback}", "kenny"},
		{"default expands", "${missing:-${user}}", "kenny"},
		{"nested name", "${${which}}", "kenny"},
		{"value re-expands", "${home}", "/home/kenny"},
		{"empty binding", "[${empty}]", "[]"},
		{"adjacent", "${port.pref}5672", "15672"},
		{"unterminated copies", "a ${oops", "a ${oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Expand(tt.in, lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestExpandMissingStrict(t *testing.T) {
	_, err := Expand("hi ${nobody}", vars(nil))
	var missing *MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "nobody", missing.Name)
}

func TestExpandLenientLeavesUnresolved(t *testing.T) {
	out, err := ExpandLenient("hi ${nobody} and ${user}", vars(map[string]string{"user": "kenny"}))
	require.NoError(t, err)
	assert.Equal(t, "hi ${nobody} and kenny", out)
}

func TestExpandCycleHitsLimit(t *testing.T) {
	lookup := vars(map[string]string{
		"a": "${b}",
		"b": "${a}",
	})
	_, err := Expand("${a}", lookup)
	var limit *LimitError
	require.ErrorAs(t, err, &limit)

	_, err = ExpandLenient("${a}", lookup)
	require.ErrorAs(t, err, &limit)
}

func TestExpandDeepButBounded(t *testing.T) {
	m := map[string]string{"v": "done"}
	for i := 1; i < 10; i++ {
		m["v"+strings.Repeat("i", i)] = "${v" + strings.Repeat("i", i-1) + "}"
	}
	out, err := Expand("${viiiiiiiii}", vars(m))
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}
