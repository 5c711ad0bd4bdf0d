package chat

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const ellipsis = "…"

// Telegram's HTML parse mode understands only these tags; attributes are dropped.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
}

// SanitizeHTML makes untrusted text safe for an HTML-mode message. Supported
// formatting tags survive without attributes; any other markup is shown literally.
func SanitizeHTML(s string) string {
	var (
		b    strings.Builder
		open []string
	)
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			b.WriteString(html.EscapeString(raw))
			closeTags(&b, open)
			return b.String()
		case html.TextToken:
			b.WriteString(html.EscapeString(string(z.Text())))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "br":
				b.WriteString("\n")
			case tt == html.StartTagToken && allowedTags[tag]:
				b.WriteString("<" + tag + ">")
				open = append(open, tag)
			default:
				b.WriteString(html.EscapeString(raw))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			i := lastOpen(open, string(name))
			if i < 0 {
				b.WriteString(html.EscapeString(raw))
				continue
			}
			closeTags(&b, open[i:])
			open = open[:i]
		default:
			b.WriteString(html.EscapeString(raw))
		}
	}
}

// VisibleLength counts the characters Telegram shows for an HTML message: tags are
// free and an entity counts once.
func VisibleLength(s string) int {
	n := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.TextToken:
			n += utf8.RuneCount(z.Text())
		}
	}
}

// TruncateHTML shortens s to limit visible characters. It cuts only inside text and
// closes the tags that were open at the cut.
func TruncateHTML(s string, limit int) string {
	if VisibleLength(s) <= limit {
		return s
	}
	budget := limit - utf8.RuneCountInString(ellipsis)
	var (
		b    strings.Builder
		open []string
	)
	z := html.NewTokenizer(strings.NewReader(s))
	for budget > 0 {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		switch tt {
		case html.TextToken:
			text := []rune(string(z.Text()))
			if len(text) > budget {
				text = text[:budget]
			}
			budget -= len(text)
			b.WriteString(html.EscapeString(string(text)))
		case html.StartTagToken:
			name, _ := z.TagName()
			open = append(open, string(name))
			b.WriteString(raw)
		case html.EndTagToken:
			name, _ := z.TagName()
			if i := lastOpen(open, string(name)); i >= 0 {
				open = open[:i]
			}
			b.WriteString(raw)
		default:
			b.WriteString(raw)
		}
	}
	b.WriteString(ellipsis)
	closeTags(&b, open)
	return b.String()
}

func lastOpen(open []string, name string) int {
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == name {
			return i
		}
	}
	return -1
}

func closeTags(b *strings.Builder, open []string) {
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
}
