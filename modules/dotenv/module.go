// Package dotenv is a media plug-in for .env files.
//
// Semantics: one KEY=value per line, an optional "export " prefix, "#"
// comments at line start or unquoted mid-line, values optionally wrapped
// in single quotes, double quotes or backticks. Quoted values keep their
// inner whitespace; double-quoted values additionally expand \n, \r and
// \t. Unquoted and single-quoted values never expand escapes.
package dotenv

import (
	"bufio"
	"io"
	"strings"

	"github.com/vk/ezkv/kvs"
	"github.com/vk/ezkv/media"
)

// MediaType is the canonical media-type string.
const MediaType = "text/x-dotenv"

// Media returns the dotenv media. It is parse-only.
func Media() media.Media {
	return media.Media{
		MediaType: MediaType,
		Aliases:   []string{"dotenv"},
		FileExt:   "env",
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
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, rest, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		emit(key, parseValue(rest))
	}
	return scanner.Err()
}

func parseValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	quote := s[0]
	if quote == '\'' || quote == '"' || quote == '`' {
		if end := strings.IndexByte(s[1:], quote); end >= 0 {
			inner := s[1 : 1+end]
			if quote == '"' {
				inner = expandEscapes(inner)
			}
			return inner
		}
		// Unterminated quote: treat as unquoted.
	}
	// Inline comments only apply outside quotes.
	if i := strings.Index(s, " #"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func expandEscapes(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			sb.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\':
			sb.WriteByte('\\')
		case '"':
			sb.WriteByte('"')
		default:
			sb.WriteByte(c)
			continue
		}
		i++
	}
	return sb.String()
}
