package kvs

import (
	"fmt"
	"regexp"
	"strings"
)

// sedCommand is one parsed command of the tiny sed dialect filters
// accept: `s/pattern/replacement/flags` (flags: any subset of "g") or
// `d`, optionally guarded by an address regex `/addr/ command`.
type sedCommand struct {
	addr        *regexp.Regexp
	verb        byte
	pattern     *regexp.Regexp
	replacement string
	global      bool
}

// parseSed parses a sed expression. Unsupported verbs and malformed
// syntax yield ErrBadFilterExpression.
func parseSed(expr string) (*sedCommand, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: empty sed expression", ErrBadFilterExpression)
	}
	cmd := &sedCommand{}
	if s[0] == '/' {
		addrText, rest, err := readDelimited(s[1:], '/')
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated address in %q", ErrBadFilterExpression, expr)
		}
		addr, err := regexp.Compile(addrText)
		if err != nil {
			return nil, fmt.Errorf("%w: bad address regex in %q: %v", ErrBadFilterExpression, expr, err)
		}
		cmd.addr = addr
		s = strings.TrimSpace(rest)
		if s == "" {
			return nil, fmt.Errorf("%w: address without command in %q", ErrBadFilterExpression, expr)
		}
	}
	cmd.verb = s[0]
	switch cmd.verb {
	case 'd':
		if strings.TrimSpace(s[1:]) != "" {
			return nil, fmt.Errorf("%w: trailing text after d in %q", ErrBadFilterExpression, expr)
		}
		return cmd, nil
	case 's':
		if len(s) < 2 {
			return nil, fmt.Errorf("%w: truncated s command in %q", ErrBadFilterExpression, expr)
		}
		delim := s[1]
		patText, rest, err := readDelimited(s[2:], delim)
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated pattern in %q", ErrBadFilterExpression, expr)
		}
		replText, flags, err := readDelimited(rest, delim)
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated replacement in %q", ErrBadFilterExpression, expr)
		}
		pattern, err := regexp.Compile(patText)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern in %q: %v", ErrBadFilterExpression, expr, err)
		}
		cmd.pattern = pattern
		cmd.replacement = translateReplacement(replText)
		for _, f := range strings.TrimSpace(flags) {
			switch f {
			case 'g':
				cmd.global = true
			default:
				return nil, fmt.Errorf("%w: unsupported sed flag %q in %q", ErrBadFilterExpression, string(f), expr)
			}
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: unsupported sed command %q in %q", ErrBadFilterExpression, string(cmd.verb), expr)
	}
}

// readDelimited reads up to the next unescaped delimiter, honoring
// backslash escapes of the delimiter itself.
func readDelimited(s string, delim byte) (string, string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			if next == delim {
				sb.WriteByte(delim)
				i++
				continue
			}
			sb.WriteByte(c)
			continue
		}
		if c == delim {
			return sb.String(), s[i+1:], nil
		}
		sb.WriteByte(c)
	}
	return "", "", fmt.Errorf("missing delimiter %q", string(delim))
}

// translateReplacement converts sed replacement syntax to Go's regexp
// template syntax: & and \N become ${0} and ${N}; \& is a literal &.
func translateReplacement(repl string) string {
	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '\\' && i+1 < len(repl):
			next := repl[i+1]
			if next >= '0' && next <= '9' {
				fmt.Fprintf(&sb, "${%c}", next)
				i++
				continue
			}
			if next == '&' || next == '\\' {
				sb.WriteByte(next)
				i++
				continue
			}
			sb.WriteByte(c)
		case c == '&':
			sb.WriteString("${0}")
		case c == '$':
			sb.WriteString("$$")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// execute applies the command. keep=false means the entry is deleted.
func (c *sedCommand) execute(s string) (string, bool) {
	if c.addr != nil && !c.addr.MatchString(s) {
		return s, true
	}
	switch c.verb {
	case 'd':
		return "", false
	case 's':
		if c.global {
			return c.pattern.ReplaceAllString(s, c.replacement), true
		}
		loc := c.pattern.FindStringSubmatchIndex(s)
		if loc == nil {
			return s, true
		}
		var out []byte
		out = append(out, s[:loc[0]]...)
		out = c.pattern.ExpandString(out, c.replacement, s, loc)
		out = append(out, s[loc[1]:]...)
		return string(out), true
	}
	return s, true
}
