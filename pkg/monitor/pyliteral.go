package monitor

import (
	"fmt"
	"strings"
)

// pyLiteralToJSON rewrites a Python literal (dict, list, tuple, str, int,
// float, True, False, None) as JSON so encoding/json can decode it.
// Expressions and calls are rejected.
func pyLiteralToJSON(s string) (string, error) {
	b := make([]byte, 0, len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			var n int
			var err error
			b, n, err = appendString(b, s[i:])
			if err != nil {
				return "", err
			}
			i += n
		case c == '(' || c == '[' || c == '{':
			if c == '(' {
				c = '['
			}
			b = append(b, c)
			i++
		case c == ')' || c == ']' || c == '}':
			if c == ')' {
				c = ']'
			}
			// Python allows a trailing comma before a closing bracket.
			if len(b) > 0 && b[len(b)-1] == ',' {
				b = b[:len(b)-1]
			}
			b = append(b, c)
			i++
		case c == ':' || c == ',':
			b = append(b, c)
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-", s[j]) >= 0 {
				j++
			}
			num := s[i:j]
			if num[0] == '+' {
				num = num[1:]
			}
			if strings.HasPrefix(num, ".") {
				num = "0" + num
			}
			if strings.HasSuffix(num, ".") {
				num += "0"
			}
			b = append(b, num...)
			i = j
		default:
			j := i
			for j < len(s) && (s[j] == '_' || s[j] >= 'A' && s[j] <= 'Z' || s[j] >= 'a' && s[j] <= 'z') {
				j++
			}
			switch s[i:j] {
			case "True":
				b = append(b, "true"...)
			case "False":
				b = append(b, "false"...)
			case "None":
				b = append(b, "null"...)
			default:
				return "", fmt.Errorf("unsupported token at offset %d: %q", i, s[i:min(len(s), i+10)])
			}
			i = j
		}
	}
	return string(b), nil
}

// appendString converts one quoted Python string starting at s[0] and
// returns how many bytes of s it consumed.
func appendString(b []byte, s string) ([]byte, int, error) {
	quote := s[0]
	b = append(b, '"')
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			if s[i+1] == '\'' {
				b = append(b, '\'')
			} else {
				b = append(b, c, s[i+1])
			}
			i++
		case c == quote:
			return append(b, '"'), i + 1, nil
		case c == '"':
			b = append(b, '\\', '"')
		default:
			b = append(b, c)
		}
	}
	return b, 0, fmt.Errorf("unterminated string")
}
