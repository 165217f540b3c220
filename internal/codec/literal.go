// Package codec converts between match values, comparator encodings and the
// per-sample probe values and bit activity decoded from capture rows.
package codec

import (
	"fmt"
	"math/big"
	"strings"
)

// Literal is a parsed bit-vector literal such as 8'hX5, 4'b01X1, 'u7 or 42.
type Literal struct {
	Text    string
	Width   int  // declared or implied width, 0 for unsized decimal
	Sized   bool // width fixed by the literal itself
	Symbols string
	Value   *big.Int // nil when the literal contains wildcards
}

// HasWildcard returns true if any bit of the literal is don't-care.
func (l Literal) HasWildcard() bool { return strings.IndexByte(l.Symbols, 'X') >= 0 }

// Fit returns the literal's symbols for a field of the given width. Sized
// literals must match exactly; unsized decimal literals are zero extended.
func (l Literal) Fit(width int) (string, error) {
	if l.Sized {
		if l.Width != width {
			return "", fmt.Errorf("literal %s has width %d, expected %d", l.Text, l.Width, width)
		}
		return l.Symbols, nil
	}
	if len(l.Symbols) > width {
		return "", fmt.Errorf("literal %s needs %d bits, expected at most %d", l.Text, len(l.Symbols), width)
	}
	return strings.Repeat("0", width-len(l.Symbols)) + l.Symbols, nil
}

// ParseLiteral parses a bit-vector literal. Accepted forms:
//
//	[width]'<radix><digits>   radix b, o, h, d or u; X digits for b/o/h
//	0x<hex>, 0b<bin>, <decimal>
//
// Underscores are ignored in digits.
func ParseLiteral(text string) (Literal, error) {
	lit := Literal{Text: text}
	s := strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	if s == "" {
		return lit, fmt.Errorf("empty literal")
	}

	var radix byte
	var digits string
	declared := -1
	if tick := strings.IndexByte(s, '\''); tick >= 0 {
		if tick > 0 {
			n, ok := parseDecimal(s[:tick])
			if !ok || n <= 0 {
				return lit, fmt.Errorf("invalid literal width in %q", text)
			}
			declared = n
		}
		rest := s[tick+1:]
		if len(rest) > 0 && (rest[0] == 's' || rest[0] == 'S') {
			rest = rest[1:]
		}
		if len(rest) < 2 {
			return lit, fmt.Errorf("invalid literal %q", text)
		}
		radix = lower(rest[0])
		digits = rest[1:]
	} else {
		switch {
		case len(s) > 2 && s[0] == '0' && lower(s[1]) == 'x':
			radix, digits = 'h', s[2:]
		case len(s) > 2 && s[0] == '0' && lower(s[1]) == 'b':
			radix, digits = 'b', s[2:]
		default:
			radix, digits = 'd', s
		}
	}

	var syms strings.Builder
	switch radix {
	case 'b', 'o', 'h':
		per := map[byte]int{'b': 1, 'o': 3, 'h': 4}[radix]
		for i := 0; i < len(digits); i++ {
			c := digits[i]
			if c == 'x' || c == 'X' {
				syms.WriteString(strings.Repeat("X", per))
				continue
			}
			v, ok := digitValue(c)
			if !ok || v >= 1<<per {
				return lit, fmt.Errorf("invalid digit %q in literal %q", c, text)
			}
			syms.WriteString(fmt.Sprintf("%0*b", per, v))
		}
	case 'd', 'u':
		v, ok := new(big.Int).SetString(digits, 10)
		if !ok || v.Sign() < 0 {
			return lit, fmt.Errorf("invalid decimal literal %q", text)
		}
		syms.WriteString(v.Text(2))
	default:
		return lit, fmt.Errorf("unknown radix %q in literal %q", radix, text)
	}

	bits := syms.String()
	switch {
	case declared > 0:
		lit.Sized = true
		lit.Width = declared
		bits = fitDeclared(bits, declared)
		if bits == "" {
			return lit, fmt.Errorf("literal %q does not fit in %d bits", text, declared)
		}
	case radix == 'd' || radix == 'u':
		bits = strings.TrimLeft(bits, "0")
		if bits == "" {
			bits = "0"
		}
	default:
		lit.Sized = true
		lit.Width = len(bits)
	}
	lit.Symbols = bits
	if !lit.HasWildcard() {
		lit.Value, _ = new(big.Int).SetString(bits, 2)
	}
	return lit, nil
}

// fitDeclared pads or trims bits to width. Trimming only drops leading zeros.
func fitDeclared(bits string, width int) string {
	if len(bits) <= width {
		pad := "0"
		if len(bits) > 0 && bits[0] == 'X' {
			pad = "X"
		}
		return strings.Repeat(pad, width-len(bits)) + bits
	}
	extra := bits[:len(bits)-width]
	if strings.Trim(extra, "0") != "" {
		return ""
	}
	return bits[len(bits)-width:]
}

func parseDecimal(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
		if n > 1<<20 {
			return 0, false
		}
	}
	return n, true
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
