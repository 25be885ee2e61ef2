// Package glob implements Redis-style glob matching (`*`, `?`, `[...]`) over
// raw bytes. The standard library's path/filepath.Match operates on runes and
// treats '/' and escaping differently than the wire protocol's key patterns
// require, so this is a small hand-rolled matcher rather than a stdlib
// substitute — see DESIGN.md for why no pack library covers this.
package glob

// Match reports whether b matches the glob pattern p. Supports '*' (any run
// of bytes, including none), '?' (exactly one byte), '[...]' character
// classes (with optional leading '^' for negation and 'a-z' ranges), and
// '\' as an escape for the next literal byte.
func Match(p, b []byte) bool {
	return match(p, b)
}

func match(p, b []byte) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(b); i++ {
				if match(p[1:], b[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(b) == 0 {
				return false
			}
			b = b[1:]
			p = p[1:]
		case '[':
			if len(b) == 0 {
				return false
			}
			end := classEnd(p)
			if end < 0 {
				// Unterminated class: treat '[' as a literal.
				if b[0] != '[' {
					return false
				}
				b = b[1:]
				p = p[1:]
				continue
			}
			if !classMatch(p[1:end], b[0]) {
				return false
			}
			b = b[1:]
			p = p[end+1:]
		case '\\':
			if len(p) > 1 {
				p = p[1:]
			}
			if len(b) == 0 || b[0] != p[0] {
				return false
			}
			b = b[1:]
			p = p[1:]
		default:
			if len(b) == 0 || b[0] != p[0] {
				return false
			}
			b = b[1:]
			p = p[1:]
		}
	}
	return len(b) == 0
}

// classEnd returns the index of the closing ']' for the class starting at
// p[0] == '[', or -1 if unterminated.
func classEnd(p []byte) int {
	i := 1
	if i < len(p) && p[i] == '^' {
		i++
	}
	if i < len(p) && p[i] == ']' {
		i++
	}
	for i < len(p) && p[i] != ']' {
		i++
	}
	if i >= len(p) {
		return -1
	}
	return i
}

func classMatch(class []byte, c byte) bool {
	negate := false
	if len(class) > 0 && class[0] == '^' {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
		} else if class[i] == c {
			matched = true
		}
	}
	if negate {
		return !matched
	}
	return matched
}
