package format

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the terminal width used for rendered answers.
const DefaultWordWrap = 100

// MarkdownFormatter renders answer text as styled terminal markdown.
type MarkdownFormatter struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// NewMarkdownFormatter builds a glamour renderer. A wordWrap <= 0 uses
// DefaultWordWrap.
func NewMarkdownFormatter(wordWrap int) (*MarkdownFormatter, error) {
	if wordWrap <= 0 {
		wordWrap = DefaultWordWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, err
	}
	return &MarkdownFormatter{renderer: r}, nil
}

// Format implements core.Formatter.
func (m *MarkdownFormatter) Format(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
