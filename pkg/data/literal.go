package data

import (
	"encoding/json"
	"strings"
)

// normalizeLiteral rewrites a Python-style literal (single quotes, True/False/None,
// trailing commas) into valid JSON.
func normalizeLiteral(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, str := readQuoted(s, i)
			b.WriteString(str)
			i = end
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentStart(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}

	out := b.String()
	if !json.Valid([]byte(out)) {
		return "", ErrNoJSON
	}
	return out, nil
}

// readQuoted reads the string literal starting at s[start] and returns the index of
// its closing quote together with the JSON encoding of its contents.
func readQuoted(s string, start int) (int, string) {
	quote := s[start]
	var raw strings.Builder
	i := start + 1
	for ; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case '\'', '"', '\\':
				raw.WriteByte(next)
			case 'n':
				raw.WriteByte('\n')
			case 't':
				raw.WriteByte('\t')
			default:
				raw.WriteByte('\\')
				raw.WriteByte(next)
			}
			i++
			continue
		}
		if c == quote {
			break
		}
		raw.WriteByte(c)
	}
	enc, _ := json.Marshal(raw.String())
	return i, string(enc)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_'
}
