// Package backend holds what the answer backends share: the prompt
// templates, chat message shape and stream emitter.
package backend

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/nexus/schema"
)

// MaxContentChars caps the page text sent to a model.
const MaxContentChars = 8000

// Message is one chat message sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Emit delivers a stream chunk to the shell.
type Emit func(schema.StreamChunk)

// Instruction is the system prompt shared by both backends.
const Instruction = `
# Rol ve Amaç
Nexus Browser adlı bir tarayıcıda çalışan bir Yapay Zeka Web Tarayıcısısın. Amacın, kullanıcıların ziyaret ettiği web sayfalarından veri analiz etmek ve bu verilere dayanarak kullanıcının siteyle ilgili sorduğu sorulara mümkün olduğunca doğru ve kapsamlı cevaplar sunmaktır.

# Talimatlar
- Kullanıcı aynı web sitesiyle ilgili başka bir soru sorduğunda, tekrar veri çekmene gerek yoktur. Önbellekteki (cache) mevcut veriyi incelemeye devam edebilirsin.
- Her zaman önce sana sağlanan sayfa içeriğini referans al.
- Kaynak sayfadan alıntı yaparken bilgileri özetle ve açık, net ifadeler kullan.
- Bilinmeyen konularda varsayımda bulunma, "bilmiyorum" demekten çekinme.
- Cevaplarını, sana sunulan metne sadık kalarak detaylı, bilgilendirici ve kapsamlı bir şekilde oluştur.

İşlem sırasında aşağıdaki ilkelere uy:
- Yanıtlarında yalnızca genel ve güvenli bilgiler sun; özel veya kişisel bilgiler (PII) içeren içerikleri yanıtlama.
- Kullanıcıya sorduğu soruyla ilgili olabildiğince detaylı cevap ver.

Kullanıcı chat alanına aşağıdaki gibi komutlar yazarsa, cevap stilini ona göre ayarla:
- /ozetle — Websitesi verilerini kısa özetle
- /acikla — Websitesi verilerini detaylı açıkla
- /madde — Websitesi verilerini maddeler halinde yaz
- /kaynakekle — Websitesindeki kaynakları belirt
- /kisalt — Önceki cevabını daha kısa yaz
- /uzat — Önceki cevabını daha detaylı yaz
`

// LocalQuestion frames a question about page content for the local model.
func LocalQuestion(content, question string) string {
	return fmt.Sprintf("Aşağıdaki web sayfası içeriğini analiz et ve sorulan soruya bu içeriğe dayanarak cevap ver:\n\n---\n\nWEB SAYFASI İÇERİĞİ (özetlenmiş):\n\n%s\n\n---\n\nSORU: %s\n\n---\n\nCevabı Türkçe ve kısa, net üret.",
		Truncate(content, MaxContentChars), question)
}

// RemoteQuestion folds the instruction, page content and question into a
// single user message.
func RemoteQuestion(content, question string) string {
	return fmt.Sprintf("TALİMATLAR:\n%s\n\nWEB SAYFASI İÇERİĞİ (özetlenmiş):\n%s\n\nSORU:\n%s\n\nLütfen kısa ve net cevap ver.",
		Instruction, Truncate(content, MaxContentChars), question)
}

// LocalMessages builds the chat for the local model: instruction, prior
// history for the page, then the framed question.
func LocalMessages(history []schema.ChatMessage, content, question string) []Message {
	out := make([]Message, 0, len(history)+2)
	out = append(out, Message{Role: string(schema.RoleSystem), Content: Instruction})
	for _, msg := range history {
		role := msg.Role
		if role != schema.RoleAssistant && role != schema.RoleSystem {
			role = schema.RoleUser
		}
		out = append(out, Message{Role: string(role), Content: msg.Content})
	}
	return append(out, Message{Role: string(schema.RoleUser), Content: LocalQuestion(content, question)})
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// StripProvider removes a "provider:" prefix from a model id.
func StripProvider(model string) string {
	for _, prefix := range []string{"ollama:", "openrouter:"} {
		if strings.HasPrefix(model, prefix) {
			return strings.TrimPrefix(model, prefix)
		}
	}
	return model
}
