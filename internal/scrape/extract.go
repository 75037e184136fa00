// Package scrape fetches pages over HTTP and extracts readable text and
// metadata from their HTML.
package scrape

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Limits applied while collecting page text.
const (
	maxHeadingsPerLevel = 3
	maxLDBlocks         = 3
	minParagraphLen     = 20
	maxParagraphChars   = 5000
	// meaningfulLen is the minimum extract length worth answering from.
	meaningfulLen = 100
)

// LinkedData holds the article fields of a JSON-LD block.
type LinkedData struct {
	Headline    string `json:"headline"`
	Description string `json:"description"`
	ArticleBody string `json:"articleBody"`
}

// Document is the structured content of an HTML page.
type Document struct {
	Title       string
	Canonical   string
	AMP         string
	Description string
	SiteName    string
	Favicon     string
	LinkedData  []LinkedData
	Headings    []string
	Paragraphs  []string
	// Text is the whitespace-collapsed visible text of the page.
	Text string
}

// Parse reads an HTML document. base resolves relative links.
func Parse(r io.Reader, base string) (Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Document{}, err
	}
	baseURL, _ := url.Parse(base)
	doc := Document{}
	meta := map[string]string{}
	headings := map[atom.Atom][]string{}
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				if attr(n, "type") == "application/ld+json" {
					doc.addLinkedData(nodeText(n))
				}
				return
			case atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if doc.Title == "" {
					doc.Title = collapse(nodeText(n))
				}
				return
			case atom.Meta:
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				if key != "" {
					if _, ok := meta[key]; !ok {
						meta[key] = strings.TrimSpace(attr(n, "content"))
					}
				}
			case atom.Link:
				rel := strings.ToLower(attr(n, "rel"))
				href := resolve(baseURL, attr(n, "href"))
				switch {
				case rel == "canonical" && doc.Canonical == "":
					doc.Canonical = href
				case rel == "amphtml" && doc.AMP == "":
					doc.AMP = href
				case strings.Contains(rel, "icon") && doc.Favicon == "":
					doc.Favicon = href
				}
			case atom.H1, atom.H2, atom.H3:
				if t := collapse(nodeText(n)); t != "" && len(headings[n.DataAtom]) < maxHeadingsPerLevel {
					headings[n.DataAtom] = append(headings[n.DataAtom], t)
				}
			case atom.P:
				if t := collapse(nodeText(n)); len(t) >= minParagraphLen {
					doc.Paragraphs = append(doc.Paragraphs, t)
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	doc.Description = meta["og:description"]
	if doc.Description == "" {
		doc.Description = meta["description"]
	}
	doc.SiteName = meta["og:site_name"]
	for _, level := range []atom.Atom{atom.H1, atom.H2, atom.H3} {
		doc.Headings = append(doc.Headings, headings[level]...)
	}
	doc.Text = collapse(text.String())
	if doc.Favicon == "" && baseURL != nil && baseURL.Host != "" {
		doc.Favicon = baseURL.Scheme + "://" + baseURL.Host + "/favicon.ico"
	}
	return doc, nil
}

func (d *Document) addLinkedData(raw string) {
	if len(d.LinkedData) >= maxLDBlocks {
		return
	}
	var ld LinkedData
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &ld); err != nil {
		return
	}
	if ld.Headline == "" && ld.Description == "" && ld.ArticleBody == "" {
		return
	}
	d.LinkedData = append(d.LinkedData, ld)
}

// Markdown renders the structured extract. The bool reports whether the
// extract carries enough content to answer from.
func (d Document) Markdown() (string, bool) {
	var b strings.Builder
	if d.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", d.Title)
	}
	if d.Canonical != "" {
		fmt.Fprintf(&b, "Canonical: %s\n\n", d.Canonical)
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "Özet:\n%s\n\n", d.Description)
	}
	if d.SiteName != "" {
		fmt.Fprintf(&b, "Site: %s\n\n", d.SiteName)
	}
	for _, ld := range d.LinkedData {
		if ld.Headline != "" {
			fmt.Fprintf(&b, "Başlık (LD): %s\n\n", ld.Headline)
		}
		if ld.Description != "" {
			fmt.Fprintf(&b, "Açıklama (LD):\n%s\n\n", ld.Description)
		}
		if ld.ArticleBody != "" {
			fmt.Fprintf(&b, "İçerik (LD):\n%s\n\n", ld.ArticleBody)
		}
	}
	if len(d.Headings) > 0 {
		b.WriteString("Başlıklar:\n")
		for _, h := range d.Headings {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	if body := d.Body(maxParagraphChars); body != "" {
		b.WriteString("İçerik:\n")
		b.WriteString(body)
	}
	out := b.String()
	return out, len(strings.TrimSpace(out)) > meaningfulLen
}

// Body joins paragraphs until limit characters are collected.
func (d Document) Body(limit int) string {
	var b strings.Builder
	for _, p := range d.Paragraphs {
		if b.Len() > limit {
			break
		}
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
