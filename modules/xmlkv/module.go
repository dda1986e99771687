// Package xmlkv is a media plug-in that flattens XML documents into
// ordered key/values. Element names join with "."; attributes append
// their name to the element path; an element's trimmed text content
// binds to the element path itself. Repeated elements produce duplicate
// keys in document order, which the key-values model preserves.
//
//	<app><db port="5672">rabbit</db></app>
//
// parses to:
//
//	app.db.port=5672
//	app.db=rabbit
package xmlkv

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/vk/ezkv/kvs"
	"github.com/vk/ezkv/media"
)

// MediaType is the canonical media-type string.
const MediaType = "application/xml"

// Media returns the XML media. It is parse-only.
func Media() media.Media {
	return media.Media{
		MediaType: MediaType,
		Aliases:   []string{"xml", "text/xml"},
		FileExt:   "xml",
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
	dec := xml.NewDecoder(r)
	var path []string
	var text []*strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			text = append(text, &strings.Builder{})
			for _, attr := range t.Attr {
				emit(strings.Join(path, ".")+"."+attr.Name.Local, attr.Value)
			}
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			if len(path) == 0 {
				return fmt.Errorf("parse xml: unbalanced end element %q", t.Name.Local)
			}
			content := strings.TrimSpace(text[len(text)-1].String())
			if content != "" {
				emit(strings.Join(path, "."), content)
			}
			path = path[:len(path)-1]
			text = text[:len(text)-1]
		}
	}
	if len(path) != 0 {
		return fmt.Errorf("parse xml: unclosed element %q", path[len(path)-1])
	}
	return nil
}
