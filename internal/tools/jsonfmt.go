package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Float is a float result that always serializes with a fraction or
// exponent, so whole values keep their ".0" ("25.0", not "25"). Non-finite values fail to
// marshal, which the dispatcher reports as a fault.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errors.New("Out of range float values are not JSON compliant")
	}
	return []byte(formatFloat(v)), nil
}

// round2 rounds to two decimals, half-to-even on the exact binary value.
func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	if err != nil {
		return x
	}
	return r
}

// formatFloat renders v with shortest round-trip digits, positional
// notation for exponents in [-4, 16) and a trailing ".0" on whole values.
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.IsNaN(v):
		return "NaN"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}

// isIntLiteral reports whether a JSON number literal has no fraction or
// exponent part.
func isIntLiteral(n json.Number) bool {
	return n != "" && !strings.ContainsAny(string(n), ".eE")
}

// parseInteger converts a JSON number holding an integral value to a
// big.Int. "5.0" and "5e2" are accepted since the schema treats them as
// integers.
func parseInteger(n json.Number) (*big.Int, error) {
	if i, ok := new(big.Int).SetString(string(n), 10); ok {
		return i, nil
	}
	r, ok := new(big.Rat).SetString(string(n))
	if !ok || !r.IsInt() {
		return nil, fmt.Errorf("invalid literal for int(): %q", string(n))
	}
	return new(big.Int).Set(r.Num()), nil
}

// intArg converts an optional integer argument, returning def when it is
// absent. Integral floats such as "4.0" are accepted.
func intArg(n json.Number, def int) (int, error) {
	if n == "" {
		return def, nil
	}
	i, err := parseInteger(n)
	if err != nil {
		return 0, err
	}
	if !i.IsInt64() || i.Int64() > math.MaxInt32 || i.Int64() < math.MinInt32 {
		return 0, fmt.Errorf("integer out of range: %s", i)
	}
	return int(i.Int64()), nil
}

// numberValue converts a JSON number to float64, defaulting to 0 for an
// absent value.
func numberValue(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	f, err := n.Float64()
	if err != nil && !math.IsInf(f, 0) {
		return 0, fmt.Errorf("could not convert to float: %q", string(n))
	}
	return f, nil
}

// echoNumber returns a JSON number for echoing back: an exact integer for
// integral literals, otherwise a Float.
func echoNumber(n json.Number) any {
	if n == "" {
		return 0
	}
	if isIntLiteral(n) {
		if i, err := parseInteger(n); err == nil {
			return i
		}
	}
	f, _ := n.Float64()
	return Float(f)
}

// JSON re-serialization: input key order kept, non-ASCII written literally,
// ", " and ": " separators.

type jsonKind int

const (
	jsonScalar jsonKind = iota
	jsonObject
	jsonArray
)

// jsonNode is a parsed JSON value that keeps object key order.
type jsonNode struct {
	kind   jsonKind
	scalar string // already-serialized scalar text
	keys   []string
	values []*jsonNode
}

// parseOrdered parses a complete JSON document. Trailing data after the
// top-level value is an error.
func parseOrdered(text string) (*jsonNode, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	node, err := parseNode(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("Expecting value: line 1 column 1 (char 0)")
		}
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("Extra data: char %d", dec.InputOffset())
	}
	return node, nil
}

func parseNode(dec *json.Decoder) (*jsonNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &jsonNode{kind: jsonObject}
			// A repeated key keeps its first position and takes the last value.
			index := make(map[string]int)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("Expecting property name enclosed in double quotes: char %d", dec.InputOffset())
				}
				val, err := parseNode(dec)
				if err != nil {
					return nil, err
				}
				if i, seen := index[key]; seen {
					n.values[i] = val
					continue
				}
				index[key] = len(n.keys)
				n.keys = append(n.keys, key)
				n.values = append(n.values, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &jsonNode{kind: jsonArray}
			for dec.More() {
				val, err := parseNode(dec)
				if err != nil {
					return nil, err
				}
				n.values = append(n.values, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return &jsonNode{scalar: quoteJSON(v)}, nil
	case json.Number:
		return &jsonNode{scalar: normalizeNumber(v)}, nil
	case bool:
		return &jsonNode{scalar: strconv.FormatBool(v)}, nil
	case nil:
		return &jsonNode{scalar: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// normalizeNumber re-renders a number literal: ints stay exact, floats
// go through formatFloat.
func normalizeNumber(n json.Number) string {
	if isIntLiteral(n) {
		if i, ok := new(big.Int).SetString(string(n), 10); ok {
			return i.String()
		}
	}
	f, _ := strconv.ParseFloat(string(n), 64)
	return formatFloat(f)
}

// quoteJSON quotes s escaping only quote, backslash and C0 controls.
// Non-ASCII and HTML characters are written as is.
func quoteJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// render writes the node. With pretty set, nested values go on their own
// lines indented by indent per level and the separators are "," / ": ";
// otherwise the output is compact with "," / ":".
func (n *jsonNode) render(b *strings.Builder, pretty bool, indent string, level int) {
	switch n.kind {
	case jsonScalar:
		b.WriteString(n.scalar)
		return
	case jsonObject:
		if len(n.values) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteByte('{')
		for i, val := range n.values {
			if i > 0 {
				b.WriteByte(',')
			}
			newline(b, pretty, indent, level+1)
			b.WriteString(quoteJSON(n.keys[i]))
			if pretty {
				b.WriteString(": ")
			} else {
				b.WriteByte(':')
			}
			val.render(b, pretty, indent, level+1)
		}
		newline(b, pretty, indent, level)
		b.WriteByte('}')
	case jsonArray:
		if len(n.values) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteByte('[')
		for i, val := range n.values {
			if i > 0 {
				b.WriteByte(',')
			}
			newline(b, pretty, indent, level+1)
			val.render(b, pretty, indent, level+1)
		}
		newline(b, pretty, indent, level)
		b.WriteByte(']')
	}
}

func newline(b *strings.Builder, pretty bool, indent string, level int) {
	if !pretty {
		return
	}
	b.WriteByte('\n')
	for i := 0; i < level; i++ {
		b.WriteString(indent)
	}
}

// formatJSON pretty-prints text with the given number of spaces per level.
// Non-positive indents still break lines, with no indentation.
func formatJSON(text string, indent int) (string, error) {
	node, err := parseOrdered(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	node.render(&b, true, strings.Repeat(" ", max(indent, 0)), 0)
	return b.String(), nil
}

// minifyJSON serializes text with no insignificant whitespace.
func minifyJSON(text string) (string, error) {
	node, err := parseOrdered(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	node.render(&b, false, "", 0)
	return b.String(), nil
}
