package ingest

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// MaxPreviewRunes bounds the stored snippet length.
const MaxPreviewRunes = 150

// SnippetKind tells how a snippet was delivered by the connector.
type SnippetKind int

const (
	// SnippetPlainText is a bare preview string.
	SnippetPlainText SnippetKind = iota
	// SnippetStructured is an object carrying body and subject, either
	// delivered as JSON or serialized into a string.
	SnippetStructured
)

// Snippet is the parsed form of a connector preview field.
type Snippet struct {
	Kind    SnippetKind
	Body    string
	Subject string
}

var errUnterminatedString = errors.New("unterminated string literal")

// ParseSnippet turns the raw snippet value into a Snippet. Objects and
// strings holding a serialized object (JSON or a Python dict literal) are
// unwrapped; anything that fails to unwrap is kept as plain text.
func ParseSnippet(v any) Snippet {
	switch x := v.(type) {
	case nil:
		return Snippet{}
	case map[string]any:
		return structuredSnippet(x)
	case string:
		return parseSnippetString(x)
	default:
		return Snippet{Kind: SnippetPlainText, Body: stringValue(x)}
	}
}

// Preview returns the normalized, bounded preview text.
func (s Snippet) Preview() string {
	return Preview(s.Body)
}

// Preview decodes HTML entities, normalizes to NFC, collapses whitespace
// and truncates to MaxPreviewRunes.
func Preview(text string) string {
	text = html.UnescapeString(text)
	text = norm.NFC.String(text)
	text = strings.Join(strings.Fields(text), " ")
	return truncateRunes(text, MaxPreviewRunes)
}

func parseSnippetString(s string) Snippet {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Snippet{Kind: SnippetPlainText, Body: s}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		converted, convErr := pythonLiteralToJSON(trimmed)
		if convErr != nil {
			return Snippet{Kind: SnippetPlainText, Body: s}
		}
		if err := json.Unmarshal([]byte(converted), &obj); err != nil {
			return Snippet{Kind: SnippetPlainText, Body: s}
		}
	}

	snip := structuredSnippet(obj)
	if snip.Body == "" && snip.Subject == "" {
		return Snippet{Kind: SnippetPlainText, Body: s}
	}
	return snip
}

func structuredSnippet(obj map[string]any) Snippet {
	return Snippet{
		Kind:    SnippetStructured,
		Body:    firstString(obj, "body", "text", "preview", "snippet"),
		Subject: firstString(obj, "subject"),
	}
}

// pythonLiteralToJSON rewrites a Python dict literal such as
// {'body': 'hi', 'read': True} into JSON.
func pythonLiteralToJSON(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			next, err := writeQuoted(&b, s, i, c)
			if err != nil {
				return "", err
			}
			i = next
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// writeQuoted copies the string literal starting at s[start] as a JSON
// string and returns the index just past the closing quote.
func writeQuoted(b *strings.Builder, s string, start int, quote byte) (int, error) {
	b.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch esc := s[i]; esc {
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		case c == quote:
			b.WriteByte('"')
			return i + 1, nil
		case c == '"':
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return 0, errUnterminatedString
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
