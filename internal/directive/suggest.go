package directive

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Suggestion is one entry of the suggestion panel.
type Suggestion struct {
	Command string `json:"command"`
	Hint    string `json:"hint"`
}

// State is a snapshot of the suggestion panel.
type State struct {
	Visible  bool         `json:"visible"`
	Items    []Suggestion `json:"items"`
	Selected int          `json:"selected"`
}

// Key identifies an input key relevant to the suggestion panel.
type Key string

const (
	KeyDown   Key = "down"
	KeyUp     Key = "up"
	KeyTab    Key = "tab"
	KeyEnter  Key = "enter"
	KeyEscape Key = "escape"
)

// Suggester tracks the suggestion panel for one input buffer.
type Suggester struct {
	mu    sync.Mutex
	state State
}

// NewSuggester returns a hidden suggestion panel.
func NewSuggester() *Suggester {
	return &Suggester{state: hiddenState()}
}

// State returns a copy of the current panel state.
func (s *Suggester) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Update refilters the panel for the current input.
func (s *Suggester) Update(input string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = filter(input)
	return copyState(s.state)
}

// Next moves the selection down, wrapping at the end.
func (s *Suggester) Next() State {
	return s.move(1)
}

// Prev moves the selection up, wrapping at the start.
func (s *Suggester) Prev() State {
	return s.move(-1)
}

// Hide closes the panel.
func (s *Suggester) Hide() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = hiddenState()
	return copyState(s.state)
}

// Accept splices the selected command into input and hides the panel. It
// returns input unchanged and false when the panel is hidden.
func (s *Suggester) Accept(input string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Visible {
		return input, false
	}
	cmd := s.state.Items[s.state.Selected].Command
	s.state = hiddenState()
	return Splice(input, cmd), true
}

// AcceptIndex selects the item at idx and accepts it (pointer selection).
func (s *Suggester) AcceptIndex(input string, idx int) (string, bool) {
	s.mu.Lock()
	if !s.state.Visible || idx < 0 || idx >= len(s.state.Items) {
		s.mu.Unlock()
		return input, false
	}
	s.state.Selected = idx
	s.mu.Unlock()
	return s.Accept(input)
}

// HandleKey applies a key press. While the panel is visible, Enter accepts
// the current suggestion instead of submitting. The returned bool reports
// whether the key was consumed by the panel.
func (s *Suggester) HandleKey(key Key, input string) (string, bool) {
	if !s.State().Visible {
		return input, false
	}
	switch key {
	case KeyDown, KeyTab:
		s.Next()
		return input, true
	case KeyUp:
		s.Prev()
		return input, true
	case KeyEnter:
		return s.Accept(input)
	case KeyEscape:
		s.Hide()
		return input, true
	default:
		return input, false
	}
}

func (s *Suggester) move(delta int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.state.Items)
	if !s.state.Visible || n == 0 {
		return copyState(s.state)
	}
	s.state.Selected = ((s.state.Selected+delta)%n + n) % n
	return copyState(s.state)
}

// Splice replaces the first token of input with cmd, keeping leading
// whitespace and any trailing content. Input that does not start with the
// sigil is kept whole after the command.
func Splice(input, cmd string) string {
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)
	leading := input[:len(input)-len(trimmed)]
	if !strings.HasPrefix(trimmed, Sigil) {
		return leading + cmd + " " + trimmed
	}
	rest := ""
	if idx := strings.IndexFunc(trimmed, unicode.IsSpace); idx >= 0 {
		_, size := utf8.DecodeRuneInString(trimmed[idx:])
		rest = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			return r
		}, trimmed[idx+size:])
	}
	if rest == "" {
		return leading + cmd + " "
	}
	return leading + cmd + " " + rest
}

func filter(input string) State {
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, Sigil) {
		return hiddenState()
	}
	token := trimmed
	if idx := strings.IndexFunc(trimmed, unicode.IsSpace); idx >= 0 {
		token = trimmed[:idx]
	}
	query := strings.ToLower(strings.TrimPrefix(token, Sigil))
	var items []Suggestion
	for _, d := range table {
		if strings.HasPrefix(d.Keyword, query) {
			items = append(items, Suggestion{Command: d.Command(), Hint: d.Hint})
		}
	}
	if len(items) == 0 {
		return hiddenState()
	}
	return State{Visible: true, Items: items, Selected: 0}
}

func hiddenState() State {
	return State{Selected: -1}
}

func copyState(state State) State {
	out := state
	if state.Items != nil {
		out.Items = append([]Suggestion(nil), state.Items...)
	}
	return out
}
