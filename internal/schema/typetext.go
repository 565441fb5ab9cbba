package schema

import (
	"fmt"
	"strings"
)

// parseValueList extracts the quoted members of "enum('a','b')" or
// "set('x','y')" type text. Doubled quotes and backslash escapes are honored.
func parseValueList(typeText string) []string {
	open := strings.IndexByte(typeText, '(')
	closing := strings.LastIndexByte(typeText, ')')
	if open < 0 || closing <= open {
		return nil
	}
	body := typeText[open+1 : closing]

	var (
		values  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if !inQuote {
			if ch == '\'' {
				inQuote = true
				cur.Reset()
			}
			continue
		}

		switch {
		case ch == '\\' && i+1 < len(body):
			i++
			cur.WriteByte(body[i])
		case ch == '\'' && i+1 < len(body) && body[i+1] == '\'':
			i++
			cur.WriteByte('\'')
		case ch == '\'':
			inQuote = false
			values = append(values, cur.String())
		default:
			cur.WriteByte(ch)
		}
	}
	return values
}

func isUnsignedType(typeText string) bool {
	return strings.Contains(strings.ToLower(typeText), "unsigned")
}

func placeholderName(idx int) string {
	return fmt.Sprintf("__dropped_col_%d__", idx)
}
