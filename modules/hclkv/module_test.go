package hclkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/ezkv/media"
)

func TestParseFlattens(t *testing.T) {
	doc := `
name = "demo"
port = 5672
secure = true
db = { host = "localhost", port = 5432 }
tags = ["a", "b"]
nothing = null
`
	pairs, err := media.ParseString(Media(), doc)
	require.NoError(t, err)
	assert.Equal(t, []media.Pair{
		{Key: "name", Value: "demo"},
		{Key: "port", Value: "5672"},
		{Key: "secure", Value: "true"},
		{Key: "db.host", Value: "localhost"},
		{Key: "db.port", Value: "5432"},
		{Key: "tags.0", Value: "a"},
		{Key: "tags.1", Value: "b"},
		{Key: "nothing", Value: ""},
	}, pairs)
}

func TestParseRejectsBlocks(t *testing.T) {
	_, err := media.ParseString(Media(), "block \"x\" {\n a = 1\n}\n")
	assert.Error(t, err)
}

func TestParseRejectsVariables(t *testing.T) {
	_, err := media.ParseString(Media(), "a = var.someone_else\n")
	assert.Error(t, err)
}

func TestParseRejectsBadSyntax(t *testing.T) {
	_, err := media.ParseString(Media(), "a = = 1\n")
	assert.Error(t, err)
}
