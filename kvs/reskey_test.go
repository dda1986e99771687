package kvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entriesOf(pairs ...[2]string) []KeyValue {
	var out []KeyValue
	for _, p := range pairs {
		out = append(out, NewKeyValue(p[0], p[1]))
	}
	return out
}

func TestParseResourceKey(t *testing.T) {
	tests := []struct {
		key  string
		kind resKeyKind
		name string
		arg  string
	}{
		{"_load_child", resKeyLoad, "child", ""},
		{"_mediaType_child", resKeyMediaType, "child", ""},
		{"_mime_child", resKeyMediaType, "child", ""},
		{"_flags_child", resKeyFlags, "child", ""},
		{"_flag_child", resKeyFlags, "child", ""},
		{"_param_child_profile", resKeyParam, "child", "profile"},
		{"_p_child_stdin_arg", resKeyParam, "child", "stdin_arg"},
		{"_filter_child_grep_key", resKeyFilter, "child", "grep_key"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rk, ok, err := parseResourceKey(tt.key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, rk.kind)
			assert.Equal(t, tt.name, rk.name)
			assert.Equal(t, tt.arg, rk.arg)
		})
	}
}

func TestParseResourceKeyOrdinaryKeys(t *testing.T) {
	for _, key := range []string{"plain", "_underscore", "_loader_x", "x_load_y", "_", "__"} {
		_, ok, err := parseResourceKey(key)
		assert.NoError(t, err, key)
		assert.False(t, ok, key)
	}
}

func TestParseResourceKeyMalformed(t *testing.T) {
	for _, key := range []string{"_load_", "_load_bad.name", "_param_child", "_filter_child", "_param_child_", "_flags_"} {
		_, _, err := parseResourceKey(key)
		assert.ErrorIs(t, err, ErrResourceKeyInvalid, key)
	}
}

func TestParseResources(t *testing.T) {
	entries := entriesOf(
		[2]string{"_flags_db", "no_require, sensitive"},
		[2]string{"app.name", "demo"},
		[2]string{"_load_db", "mem:/db"},
		[2]string{"_mediaType_db", "properties"},
		[2]string{"_param_db_profile", "dev"},
		[2]string{"_filter_db_grep", "^db"},
		[2]string{"_load_extra", "mem:/extra"},
	)
	resources, err := parseResources(entries)
	require.NoError(t, err)
	require.Len(t, resources, 2)

	db := resources[0]
	assert.Equal(t, "db", db.Name)
	assert.Equal(t, "mem:/db", db.URI)
	assert.True(t, db.Flags.Has(LoadFlagNoRequire))
	assert.True(t, db.Flags.Has(LoadFlagSensitive))
	assert.Equal(t, "properties", db.MediaType)
	profile, ok := db.Parameters.Get("profile")
	require.True(t, ok)
	assert.Equal(t, "dev", profile)
	require.Len(t, db.Filters, 1)
	assert.Equal(t, "grep", db.Filters[0].ID)
	assert.Equal(t, "^db", db.Filters[0].Expression)
	require.NotNil(t, db.Reference)
	assert.Equal(t, "_load_db", db.Reference.Key)

	assert.Equal(t, "extra", resources[1].Name)
}

func TestParseResourcesErrors(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		_, err := parseResources(entriesOf(
			[2]string{"_load_db", "mem:/a"},
			[2]string{"_load_db", "mem:/b"},
		))
		assert.ErrorIs(t, err, ErrResourceNameDuplicate)
	})
	t.Run("missing anchor", func(t *testing.T) {
		_, err := parseResources(entriesOf([2]string{"_flags_db", "sensitive"}))
		assert.ErrorIs(t, err, ErrResourceKeyInvalid)
	})
	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseResources(entriesOf(
			[2]string{"_load_db", "mem:/a"},
			[2]string{"_flags_db", "NO_SUCH_FLAG"},
		))
		assert.ErrorIs(t, err, ErrResourceKeyInvalid)
	})
	t.Run("reserved lock flag", func(t *testing.T) {
		_, err := parseResources(entriesOf(
			[2]string{"_load_db", "mem:/a"},
			[2]string{"_flags_db", "lock"},
		))
		assert.ErrorIs(t, err, ErrResourceKeyInvalid)
	})
}

func TestNormalizeResource(t *testing.T) {
	r := MustResource("env", "env:///?_filter_grep_key=^MY_APP_&_filter_sed_key=s/^MY_APP_/myapp./&_flag=no_require&_p_profile=dev&keep=me")
	r.Filters = append(r.Filters, Filter{ID: "join", Expression: ","})

	n, err := normalizeResource(r)
	require.NoError(t, err)
	assert.True(t, n.Normalized())
	assert.Equal(t, "env:///?keep=me", n.URI)
	assert.True(t, n.Flags.Has(LoadFlagNoRequire))

	profile, ok := n.Parameters.Get("profile")
	require.True(t, ok)
	assert.Equal(t, "dev", profile)

	// Programmatic filters come first, URI filters append in URI order.
	require.Len(t, n.Filters, 3)
	assert.Equal(t, "join", n.Filters[0].ID)
	assert.Equal(t, "grep_key", n.Filters[1].ID)
	assert.Equal(t, "sed_key", n.Filters[2].ID)
	assert.Equal(t, "s/^MY_APP_/myapp./", n.Filters[2].Expression)

	// The original declaration is untouched.
	assert.False(t, r.Normalized())
	assert.Len(t, r.Filters, 1)
}

func TestNormalizeResourceQueryOverridesParameters(t *testing.T) {
	r := MustResource("app", "mem:/app?_param_profile=prod")
	r.Parameters.Set("profile", "dev")
	r.Parameters.Set("other", "kept")

	n, err := normalizeResource(r)
	require.NoError(t, err)
	profile, _ := n.Parameters.Get("profile")
	assert.Equal(t, "prod", profile)
	other, _ := n.Parameters.Get("other")
	assert.Equal(t, "kept", other)
	assert.Equal(t, "mem:/app", n.URI)
}

// URI-encoded flags and body flags must yield identical configurations.
func TestFlagSymmetry(t *testing.T) {
	fromBody, err := parseResources(entriesOf(
		[2]string{"_load_app", "mem:/app"},
		[2]string{"_flags_app", "NO_ADD,NO_INTERPOLATE"},
	))
	require.NoError(t, err)

	fromURI, err := normalizeResource(MustResource("app", "mem:/app?_flags=NO_ADD,NO_INTERPOLATE"))
	require.NoError(t, err)

	assert.Equal(t, fromBody[0].Flags, fromURI.Flags)
	assert.Equal(t, fromBody[0].URI, fromURI.URI)
}

func TestFormatResourceRoundTrip(t *testing.T) {
	r := MustResource("db", "mem:/db")
	r.Flags = LoadFlagNoRequire | LoadFlagSensitive
	r.MediaType = "properties"
	r.Parameters.Set("profile", "dev")
	r.Filters = []Filter{{ID: "grep", Expression: "^db"}}

	var entries []KeyValue
	formatResource(r, func(k, v string) {
		entries = append(entries, NewKeyValue(k, v))
	})
	back, err := parseResources(entries)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, r.Name, back[0].Name)
	assert.Equal(t, r.URI, back[0].URI)
	assert.Equal(t, r.Flags, back[0].Flags)
	assert.Equal(t, r.MediaType, back[0].MediaType)
	profile, _ := back[0].Parameters.Get("profile")
	assert.Equal(t, "dev", profile)
	assert.Equal(t, r.Filters[0], Filter{ID: back[0].Filters[0].ID, Expression: back[0].Filters[0].Expression})
}

func TestStripResourceKeys(t *testing.T) {
	in := NewKeyValues(entriesOf(
		[2]string{"_load_db", "mem:/db"},
		[2]string{"_flags_db", "sensitive"},
		[2]string{"app.name", "demo"},
		[2]string{"_notmeta", "stays"},
	))
	assert.Equal(t, []string{"app.name", "_notmeta"}, keysOf(stripResourceKeys(in)))
}

func TestParseLoadFlags(t *testing.T) {
	flags, err := ParseLoadFlags("optional, no_empty,SENSITIVE")
	require.NoError(t, err)
	assert.True(t, flags.Has(LoadFlagNoRequire))
	assert.True(t, flags.Has(LoadFlagNoEmpty))
	assert.True(t, flags.Has(LoadFlagSensitive))
	assert.Equal(t, "NO_REQUIRE,NO_EMPTY,SENSITIVE", flags.String())

	_, err = ParseLoadFlags("LOCK")
	assert.ErrorIs(t, err, ErrResourceKeyInvalid)
}
