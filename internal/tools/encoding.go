package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/triage-ai/toolbox/internal/registry"
)

type textArgs struct {
	Text string `json:"text"`
}

type jsonFormatArgs struct {
	Text   string      `json:"text"`
	Indent json.Number `json:"indent"`
}

func textParam(desc string) registry.Param {
	return registry.Param{Name: "text", Type: "string", Description: desc, Required: true}
}

// Encoding returns the encoding tool group.
func Encoding() []registry.Tool {
	return []registry.Tool{
		{
			Name:        "base64_encode",
			Description: "Encode text to Base64",
			Parameters:  registry.Params(textParam("Text to encode")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				return registry.Result{"encoded": base64.StdEncoding.EncodeToString([]byte(a.Text))}, nil
			}),
		},
		{
			Name:        "base64_decode",
			Description: "Decode Base64 to text",
			Parameters:  registry.Params(textParam("Base64 string to decode")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				decoded, err := decodeBase64Text(a.Text)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"decoded": decoded}, nil
			}),
		},
		{
			Name:        "url_encode",
			Description: "Percent-encode text for use in a URL",
			Parameters:  registry.Params(textParam("Text to encode")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				return registry.Result{"encoded": quoteURL(a.Text)}, nil
			}),
		},
		{
			Name:        "url_decode",
			Description: "Decode percent-encoded text",
			Parameters:  registry.Params(textParam("URL-encoded text to decode")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				return registry.Result{"decoded": unquoteURL(a.Text)}, nil
			}),
		},
		{
			Name:        "html_encode",
			Description: "Escape HTML special characters",
			Parameters:  registry.Params(textParam("Text to escape")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				return registry.Result{"encoded": escapeHTML(a.Text)}, nil
			}),
		},
		{
			Name:        "html_decode",
			Description: "Unescape HTML entities",
			Parameters:  registry.Params(textParam("HTML-escaped text to decode")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				return registry.Result{"decoded": html.UnescapeString(a.Text)}, nil
			}),
		},
		{
			Name:        "json_format",
			Description: "Pretty-print a JSON document",
			Parameters: registry.Params(
				textParam("JSON string to format"),
				registry.Param{Name: "indent", Type: "integer", Description: "Spaces per indentation level (default: 2)"},
			),
			Handler: registry.Typed(func(_ context.Context, a jsonFormatArgs) (registry.Result, error) {
				indent, err := intArg(a.Indent, 2)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				formatted, err := formatJSON(a.Text, indent)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"formatted": formatted}, nil
			}),
		},
		{
			Name:        "json_minify",
			Description: "Remove insignificant whitespace from a JSON document",
			Parameters:  registry.Params(textParam("JSON string to minify")),
			Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
				minified, err := minifyJSON(a.Text)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"minified": minified}, nil
			}),
		},
	}
}

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&#x27;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

const upperHex = "0123456789ABCDEF"

// quoteURL percent-encodes every byte outside the unreserved set, leaving
// "/" intact.
func quoteURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_' || c == '.' || c == '~'
}

// unquoteURL decodes %XX escapes. Malformed escapes are kept literally and
// byte sequences that are not UTF-8 become U+FFFD. Unlike url.QueryUnescape
// it never fails and leaves "+" alone.
func unquoteURL(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, s[i])
	}
	return replaceInvalidUTF8(buf)
}

func replaceInvalidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var out strings.Builder
	out.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			out.WriteRune(utf8.RuneError)
		} else {
			out.Write(b[:size])
		}
		b = b[size:]
	}
	return out.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// decodeBase64Text decodes permissively: characters outside the Base64
// alphabet are discarded, and input ends at the first padding that
// completes a quad. The decoded bytes must be UTF-8.
func decodeBase64Text(s string) (string, error) {
	data := make([]byte, 0, len(s))
	pads := 0
	padded := false
	for i := 0; i < len(s) && !padded; i++ {
		c := s[i]
		switch {
		case c == '=':
			// Padding only counts once a quad holds two data characters.
			if quad := len(data) % 4; quad >= 2 {
				pads++
				padded = quad+pads >= 4
			}
		case isBase64Char(c):
			data = append(data, c)
			pads = 0
		}
	}

	switch rem := len(data) % 4; {
	case rem == 1:
		return "", fmt.Errorf("Invalid base64-encoded string: number of data characters (%d) cannot be 1 more than a multiple of 4", len(data))
	case rem != 0 && !padded:
		return "", errors.New("Incorrect padding")
	}

	raw, err := base64.RawStdEncoding.DecodeString(string(data))
	if err != nil {
		return "", fmt.Errorf("Invalid base64-encoded string: %v", err)
	}
	if pos, ok := firstInvalidUTF8(raw); !ok {
		return "", fmt.Errorf("'utf-8' codec can't decode byte 0x%02x in position %d: %s", raw[pos], pos, utf8Reason(raw[pos:]))
	}
	return string(raw), nil
}

func isBase64Char(c byte) bool {
	return ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') || c == '+' || c == '/'
}

func firstInvalidUTF8(b []byte) (int, bool) {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i, false
		}
		i += size
	}
	return 0, true
}

// utf8Reason classifies the invalid sequence at the start of b.
func utf8Reason(b []byte) string {
	c := b[0]
	var need int
	switch {
	case c >= 0xc2 && c <= 0xdf:
		need = 2
	case c >= 0xe0 && c <= 0xef:
		need = 3
	case c >= 0xf0 && c <= 0xf4:
		need = 4
	default:
		return "invalid start byte"
	}
	if len(b) < need && !utf8.FullRune(b) {
		for _, cont := range b[1:] {
			if cont&0xc0 != 0x80 {
				return "invalid continuation byte"
			}
		}
		return "unexpected end of data"
	}
	return "invalid continuation byte"
}
