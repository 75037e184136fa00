package directive

import "strings"

// Sigil starts every directive.
const Sigil = "/"

// Directive maps a keyword to a style instruction for the answer backend.
type Directive struct {
	Keyword         string
	Hint            string
	Instruction     string
	DefaultQuestion string
}

// Command returns the keyword with its sigil.
func (d Directive) Command() string {
	return Sigil + d.Keyword
}

var table = []Directive{
	{
		Keyword:         "ozetle",
		Hint:            "Metni kısa özetle",
		Instruction:     "Biçim: Kısa ve öz bir özet ver.",
		DefaultQuestion: "Bu sayfayı özetler misin?",
	},
	{
		Keyword:         "acikla",
		Hint:            "Detaylı açıkla",
		Instruction:     "Biçim: Detaylı ve açıklayıcı anlat.",
		DefaultQuestion: "Bu içeriği detaylı açıklar mısın?",
	},
	{
		Keyword:         "madde",
		Hint:            "Maddeler halinde yaz",
		Instruction:     "Biçim: Maddeler halinde açıkla.",
		DefaultQuestion: "Bu içeriği maddeler halinde açıklar mısın?",
	},
	{
		Keyword:         "kaynakekle",
		Hint:            "Kaynakları belirt",
		Instruction:     "Biçim: Varsa kaynak/bağlantıları ekle.",
		DefaultQuestion: "Bu içerikle ilgili kaynak/bağlantıları ekler misin?",
	},
	{
		Keyword:         "kisalt",
		Hint:            "Daha kısa yaz",
		Instruction:     "Biçim: Daha kısa yaz.",
		DefaultQuestion: "Bu yanıtı daha kısa yazar mısın?",
	},
	{
		Keyword:         "uzat",
		Hint:            "Daha detaylı yaz",
		Instruction:     "Biçim: Daha detaylı yaz.",
		DefaultQuestion: "Bu yanıtı daha detaylı yazar mısın?",
	},
}

// All returns the directive table in display order.
func All() []Directive {
	out := make([]Directive, len(table))
	copy(out, table)
	return out
}

// Lookup finds a directive by keyword (case-insensitive, without sigil).
func Lookup(keyword string) (Directive, bool) {
	for _, d := range table {
		if strings.EqualFold(d.Keyword, keyword) {
			return d, true
		}
	}
	return Directive{}, false
}
