package directive

import "testing"

func TestParseDirectiveWithContent(t *testing.T) {
	res := Parse("/ozetle hello world")
	if res.Directive == nil {
		t.Fatalf("expected directive")
	}
	if res.Directive.Keyword != "ozetle" {
		t.Fatalf("unexpected keyword %q", res.Directive.Keyword)
	}
	if res.Clean != "hello world" {
		t.Fatalf("unexpected clean text %q", res.Clean)
	}
	want := "Biçim: Kısa ve öz bir özet ver.\n\nhello world"
	if got := res.Prompt(); got != want {
		t.Fatalf("prompt = %q, want %q", got, want)
	}
}

func TestParseDirectiveDefaultQuestion(t *testing.T) {
	res := Parse("/ozetle")
	if res.Directive == nil {
		t.Fatalf("expected directive")
	}
	if res.Clean != "Bu sayfayı özetler misin?" {
		t.Fatalf("expected default question, got %q", res.Clean)
	}
	res = Parse("  /MADDE   ")
	if res.Keyword() != "madde" || res.Clean != "Bu içeriği maddeler halinde açıklar mısın?" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestParsePlainText(t *testing.T) {
	cases := []string{
		"not a directive",
		"/unknown keyword here",
		"/ozetlex trailing",
		"",
		"  leading spaces stay ",
	}
	for _, input := range cases {
		res := Parse(input)
		if res.Directive != nil {
			t.Fatalf("%q: expected no directive, got %q", input, res.Directive.Keyword)
		}
		if res.Clean != input {
			t.Fatalf("%q: expected verbatim clean text, got %q", input, res.Clean)
		}
		if res.Prompt() != input {
			t.Fatalf("%q: expected verbatim prompt, got %q", input, res.Prompt())
		}
	}
}

func TestParseMultilineContent(t *testing.T) {
	res := Parse("/kisalt first line\nsecond line\n")
	if res.Keyword() != "kisalt" {
		t.Fatalf("expected kisalt, got %+v", res)
	}
	if res.Clean != "first line\nsecond line" {
		t.Fatalf("unexpected clean text %q", res.Clean)
	}
}

func TestLookupAndAllOrder(t *testing.T) {
	all := All()
	want := []string{"ozetle", "acikla", "madde", "kaynakekle", "kisalt", "uzat"}
	if len(all) != len(want) {
		t.Fatalf("expected %d directives, got %d", len(want), len(all))
	}
	for i, d := range all {
		if d.Keyword != want[i] {
			t.Fatalf("index %d: got %q want %q", i, d.Keyword, want[i])
		}
		if d.Instruction == "" || d.DefaultQuestion == "" || d.Hint == "" {
			t.Fatalf("incomplete directive %+v", d)
		}
	}
	all[0].Keyword = "mutated"
	if _, ok := Lookup("ozetle"); !ok {
		t.Fatalf("All must return a copy")
	}
	if _, ok := Lookup("UZAT"); !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
}
