package directive

import (
	"regexp"
	"strings"
)

var directivePattern = regexp.MustCompile(`(?s)^\s*/(\w+)\b(.*)$`)

// Result is a message split into its clean text and the directive it named.
type Result struct {
	Clean     string
	Directive *Directive
}

// Parse splits input into clean content and an optional directive. Input that
// does not name a known directive is returned verbatim with a nil Directive.
// A directive without trailing content gets its default question.
func Parse(input string) Result {
	match := directivePattern.FindStringSubmatch(input)
	if match == nil {
		return Result{Clean: input}
	}
	d, ok := Lookup(strings.ToLower(match[1]))
	if !ok {
		return Result{Clean: input}
	}
	clean := strings.TrimSpace(match[2])
	if clean == "" {
		clean = d.DefaultQuestion
	}
	return Result{Clean: clean, Directive: &d}
}

// Prompt renders the text sent to the answer backend.
func (r Result) Prompt() string {
	if r.Directive == nil {
		return r.Clean
	}
	return r.Directive.Instruction + "\n\n" + r.Clean
}

// Keyword returns the directive keyword or "".
func (r Result) Keyword() string {
	if r.Directive == nil {
		return ""
	}
	return r.Directive.Keyword
}
