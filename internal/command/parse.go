package command

import (
	"strings"
	"unicode"
)

// Prefix introduces a shell command. A leading "/" stays with the
// directive parser.
const Prefix = ":"

// Command is one parsed shell command. Args honours double quotes so
// titles with spaces stay a single argument; Remainder is the raw text
// after the name, for commands that take free text such as a URL or query.
type Command struct {
	Name      string
	Args      []string
	Raw       string
	Remainder string
}

// Parse reports whether input is a command and parses it.
func Parse(input string) (Command, bool) {
	rest, ok := strings.CutPrefix(strings.TrimLeftFunc(input, unicode.IsSpace), Prefix)
	if !ok {
		return Command{}, false
	}
	raw := strings.TrimSpace(rest)
	name, remainder := raw, ""
	if i := strings.IndexFunc(raw, unicode.IsSpace); i >= 0 {
		name, remainder = raw[:i], raw[i:]
	}
	return Command{
		Name:      strings.ToLower(name),
		Args:      splitArgs(remainder),
		Raw:       raw,
		Remainder: strings.TrimSpace(remainder),
	}, true
}

// splitArgs splits on whitespace outside double quotes. An unterminated
// quote runs to the end of the line.
func splitArgs(s string) []string {
	args := []string{}
	var cur strings.Builder
	quoted, pending := false, false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case unicode.IsSpace(r) && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
