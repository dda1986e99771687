// Package hclkv is a media plug-in for flat HCL attribute files. The
// document must consist of top-level attributes with literal values;
// blocks and variable references are rejected. Object values join member
// names with ".", tuple elements get a 0-based numeric segment, and
// primitives convert to their string form.
//
//	db = { host = "localhost", port = 5672 }
//	tags = ["a", "b"]
//
// parses to:
//
//	db.host=localhost
//	db.port=5672
//	tags.0=a
//	tags.1=b
package hclkv

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/ezkv/kvs"
	"github.com/vk/ezkv/media"
)

// MediaType is the canonical media-type string.
const MediaType = "application/x-hcl"

// Media returns the HCL media. It is parse-only.
func Media() media.Media {
	return media.Media{
		MediaType: MediaType,
		Aliases:   []string{"hcl"},
		FileExt:   "hcl",
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
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	file, diags := hclparse.NewParser().ParseHCL(src, "keyvalues.hcl")
	if diags.HasErrors() {
		return fmt.Errorf("parse hcl: %w", diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("hcl document must be flat attributes: %w", diags)
	}
	// Attribute maps are unordered; recover source order from ranges.
	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Line < ordered[j].Range.Start.Line
	})
	for _, a := range ordered {
		value, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("attribute %q must be a literal: %w", a.Name, diags)
		}
		if err := flatten(a.Name, value, emit); err != nil {
			return err
		}
	}
	return nil
}

func flatten(prefix string, v cty.Value, emit func(key, value string)) error {
	if v.IsNull() {
		emit(prefix, "")
		return nil
	}
	t := v.Type()
	switch {
	case t.IsObjectType() || t.IsMapType():
		m := v.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flatten(prefix+"."+k, m[k], emit); err != nil {
				return err
			}
		}
		return nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		for i, elem := range v.AsValueSlice() {
			if err := flatten(prefix+"."+strconv.Itoa(i), elem, emit); err != nil {
				return err
			}
		}
		return nil
	default:
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", prefix, err)
		}
		emit(prefix, s.AsString())
		return nil
	}
}
