package format

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stripInline removes inline markdown from a single line. Emphasis and code
// markers are dropped only when closed later on the line, links become
// "text (url)" and backslash escapes yield the escaped byte.
func stripInline(line string) string {
	var b strings.Builder
	code := false
	open := map[string]bool{}
	for i := 0; i < len(line); {
		ch := line[i]
		switch {
		case ch == '`':
			if code || strings.IndexByte(line[i+1:], '`') >= 0 {
				code = !code
				i++
				continue
			}
		case code:
		case ch == '\\' && i+1 < len(line):
			b.WriteByte(line[i+1])
			i += 2
			continue
		case ch == '[':
			if text, url, n, ok := parseLink(line[i:]); ok {
				b.WriteString(stripInline(text))
				if url != "" && url != text {
					b.WriteString(" (" + url + ")")
				}
				i += n
				continue
			}
		case ch == '*' || ch == '_':
			marker := line[i : i+1]
			if i+1 < len(line) && line[i+1] == ch {
				marker = line[i : i+2]
			}
			next := i + len(marker)
			switch {
			case ch == '_' && intraword(line, i, next):
			case open[marker]:
				open[marker] = false
				i = next
				continue
			case strings.Contains(line[next:], marker):
				open[marker] = true
				i = next
				continue
			}
			b.WriteString(marker)
			i = next
			continue
		}
		b.WriteByte(ch)
		i++
	}
	return b.String()
}

// parseLink reads "[text](url)" at the start of s and reports its length.
func parseLink(s string) (text, url string, n int, ok bool) {
	end := strings.IndexByte(s, ']')
	if end < 1 || end+1 >= len(s) || s[end+1] != '(' {
		return "", "", 0, false
	}
	closeIdx := strings.IndexByte(s[end+2:], ')')
	if closeIdx < 0 {
		return "", "", 0, false
	}
	return s[1:end], strings.TrimSpace(s[end+2 : end+2+closeIdx]), end + 3 + closeIdx, true
}

// intraword reports whether the marker spanning [start,end) sits between two
// word characters, as in snake_case identifiers.
func intraword(line string, start, end int) bool {
	if start == 0 || end >= len(line) {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(line[:start])
	after, _ := utf8.DecodeRuneInString(line[end:])
	return isWord(before) && isWord(after)
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripHeading drops a leading ATX heading marker.
func stripHeading(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && level < 6 && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
		return line
	}
	return strings.TrimSpace(trimmed[level:])
}
