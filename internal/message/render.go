package message

import "strings"

// Render substitutes every {name} token whose name is present in fields.
//
// Substitution is a single left-to-right pass: inserted values are never
// scanned again, so a value containing "{firstName}" is emitted literally.
// Unknown names, empty braces and an unclosed "{" are copied verbatim.
func Render(template string, fields Fields) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		rest = rest[open:]

		end := tokenEnd(rest)
		if end < 0 {
			// not a token; keep the brace and continue after it
			b.WriteByte('{')
			rest = rest[1:]
			continue
		}

		name := rest[1:end]
		if value, ok := fields[name]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[:end+1])
		}
		rest = rest[end+1:]
	}

	return b.String()
}

// tokenEnd returns the index of the closing brace of a well-formed token at
// the start of s, or -1.
func tokenEnd(s string) int {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '}':
			if i == 1 {
				return -1
			}
			return i
		case isNameByte(c):
		default:
			return -1
		}
	}
	return -1
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
