// Package jsonkv is a media plug-in that flattens JSON documents into
// ordered key/values. Nested objects join member names with ".", array
// elements get a 0-based numeric segment, strings render unquoted, other
// scalars render with their JSON text, and null becomes the empty string.
//
//	{"db": {"hosts": ["a", "b"], "port": 5672}}
//
// parses to:
//
//	db.hosts.0=a
//	db.hosts.1=b
//	db.port=5672
package jsonkv

import (
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/vk/ezkv/kvs"
	"github.com/vk/ezkv/media"
)

// MediaType is the canonical media-type string.
const MediaType = "application/json"

// Media returns the JSON media. It is parse-only.
func Media() media.Media {
	return media.Media{
		MediaType: MediaType,
		Aliases:   []string{"json"},
		FileExt:   "json",
		Parser:    media.ParserFunc(parse),
	}
}

type module struct{}

// Module returns the self-registering module for SystemBuilder.Use.
func Module() kvs.Module {
	return module{}
}

func (module) Register(b *kvs.SystemBuilder) {
	b.Media(Media())
}

func parse(r io.Reader, emit func(key, value string)) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json document")
	}
	flatten("", gjson.ParseBytes(data), emit)
	return nil
}

func flatten(prefix string, v gjson.Result, emit func(key, value string)) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			flatten(join(prefix, key.String()), value, emit)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, value gjson.Result) bool {
			flatten(join(prefix, fmt.Sprintf("%d", i)), value, emit)
			i++
			return true
		})
	default:
		if prefix == "" {
			// A bare scalar document has no key to bind to.
			return
		}
		emit(prefix, v.String())
	}
}

func join(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
