package sqlparse

import (
	"fmt"
	"strings"
	"unicode"
)

// BindNamedParams rewrites :name placeholders to $1..$n positional form and
// returns the ordered parameter names ($i binds names[i-1]). Repeated names
// share one position. Quoted strings, dollar-quoted strings, comments, and
// ::type casts are left untouched.
func BindNamedParams(sql string) (string, []string, error) {
	var out strings.Builder
	var names []string
	positions := make(map[string]int)

	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '\'':
			j, err := skipQuoted(runes, i, '\'')
			if err != nil {
				return "", nil, err
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case c == '"':
			j, err := skipQuoted(runes, i, '"')
			if err != nil {
				return "", nil, err
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case c == '$' && i+1 < len(runes) && (runes[i+1] == '$' || isIdentStart(runes[i+1])):
			j, ok := skipDollarQuoted(runes, i)
			if !ok {
				// not a dollar quote ($1 positional refs land here too)
				out.WriteRune(c)
				i++
				continue
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			j := i
			for j < len(runes) && runes[j] != '\n' {
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			j := strings.Index(string(runes[i+2:]), "*/")
			if j < 0 {
				return "", nil, fmt.Errorf("unterminated block comment")
			}
			end := i + 2 + len([]rune(string(runes[i+2:])[:j])) + 2
			out.WriteString(string(runes[i:end]))
			i = end
		case c == ':':
			if i+1 < len(runes) && runes[i+1] == ':' {
				// type cast
				out.WriteString("::")
				i += 2
				continue
			}
			if i+1 < len(runes) && isIdentStart(runes[i+1]) {
				j := i + 1
				for j < len(runes) && isIdentPart(runes[j]) {
					j++
				}
				name := strings.ToLower(string(runes[i+1 : j]))
				pos, ok := positions[name]
				if !ok {
					names = append(names, name)
					pos = len(names)
					positions[name] = pos
				}
				fmt.Fprintf(&out, "$%d", pos)
				i = j
				continue
			}
			out.WriteRune(c)
			i++
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), names, nil
}

// ParamPosition returns the 1-based $n position of name, or 0 when the
// statement never binds it.
func ParamPosition(names []string, name string) int {
	for i, n := range names {
		if n == strings.ToLower(name) {
			return i + 1
		}
	}
	return 0
}

func skipQuoted(runes []rune, start int, quote rune) (int, error) {
	i := start + 1
	for i < len(runes) {
		if runes[i] == quote {
			if i+1 < len(runes) && runes[i+1] == quote {
				i += 2 // escaped quote
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("unterminated quoted literal")
}

// skipDollarQuoted handles $tag$ ... $tag$ bodies. Returns (end, false) when
// the dollar sign does not open a dollar quote.
func skipDollarQuoted(runes []rune, start int) (int, bool) {
	j := start + 1
	for j < len(runes) && isIdentPart(runes[j]) {
		j++
	}
	if j >= len(runes) || runes[j] != '$' {
		return 0, false
	}
	tag := string(runes[start : j+1])
	rest := string(runes[j+1:])
	k := strings.Index(rest, tag)
	if k < 0 {
		return 0, false
	}
	return j + 1 + len([]rune(rest[:k])) + len([]rune(tag)), true
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
