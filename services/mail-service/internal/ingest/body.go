package ingest

import (
	"encoding/base64"
	"strings"

	"golang.org/x/net/html"
)

// htmlSniffWindow is how far into a plain-text body we look for markup.
const htmlSniffWindow = 500

var skipTextElements = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"title":  true,
}

// LooksLikeHTML reports whether a body delivered as plain text is really
// an HTML document.
func LooksLikeHTML(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return true
	}
	if len(lower) > htmlSniffWindow {
		lower = lower[:htmlSniffWindow]
	}
	return strings.Contains(lower, "<table")
}

// HTMLToText extracts the visible text of an HTML document.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var parts []string
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipTextElements[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipTextElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

// mimeBodies walks a Gmail API payload tree and returns the first
// text/plain and text/html parts that are not attachments.
func mimeBodies(part map[string]any) (text, htmlBody string) {
	var walk func(p map[string]any)
	walk = func(p map[string]any) {
		if filename := firstString(p, "filename"); filename != "" {
			return
		}
		mimeType := strings.ToLower(firstString(p, "mimeType"))
		if body, ok := p["body"].(map[string]any); ok {
			data := decodeBase64URL(firstString(body, "data"))
			switch {
			case strings.HasPrefix(mimeType, "text/plain") && text == "":
				text = data
			case strings.HasPrefix(mimeType, "text/html") && htmlBody == "":
				htmlBody = data
			}
		}
		if parts, ok := p["parts"].([]any); ok {
			for _, child := range parts {
				if cp, ok := child.(map[string]any); ok {
					walk(cp)
				}
			}
		}
	}
	walk(part)
	return text, htmlBody
}

func decodeBase64URL(s string) string {
	if s == "" {
		return ""
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return string(b)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b)
	}
	return ""
}
