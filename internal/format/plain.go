package format

import "strings"

// PlainFormatter renders answer text without styling. Inline markdown
// markers are removed so the text reads cleanly in a plain transport.
type PlainFormatter struct{}

// NewPlainFormatter returns a default plain-text formatter.
func NewPlainFormatter() *PlainFormatter {
	return &PlainFormatter{}
}

// Format implements core.Formatter.
func (p *PlainFormatter) Format(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	lines := splitLines(text)
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = stripInline(stripHeading(line))
	}
	return strings.Join(lines, "\n"), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
