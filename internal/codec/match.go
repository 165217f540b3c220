package codec

import (
	"math/big"
	"strings"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

// Comparator is the hardware comparator record for one probe match clause.
// Symbols holds one alphabet symbol per probe bit, most significant first.
// Bits holds the capture row bit of each symbol.
type Comparator struct {
	Probe   string       `cbor:"1,keyasint"`
	Width   int          `cbor:"2,keyasint"`
	Op      ila.Operator `cbor:"3,keyasint"`
	Symbols string       `cbor:"4,keyasint"`
	Bits    []int        `cbor:"5,keyasint"`
}

// Masks is the per-bit register image of a comparator. Bit i of each mask
// corresponds to probe bit i.
type Masks struct {
	Value    *big.Int
	Care     *big.Int
	Rise     *big.Int
	Fall     *big.Int
	Either   *big.Int
	NoChange *big.Int
}

// EncodeMatch validates a match value for probe p and returns the comparator.
// value is a symbol string over the match alphabet or an unambiguous literal:
// a sized or radix literal (8'hX5, 'u7), a 0x or 0b prefixed number, or a
// decimal number with a digit above 1. Digit strings of only 0 and 1 are
// per-bit symbols; write 'd101 for the decimal value.
func EncodeMatch(p *probe.Probe, value string, op ila.Operator) (Comparator, error) {
	syms, err := normalizeValue(p, value)
	if err != nil {
		return Comparator{}, err
	}
	if err := checkSymbols(p.Name, syms, op); err != nil {
		return Comparator{}, err
	}
	return Comparator{Probe: p.Name, Width: p.Width, Op: op, Symbols: syms}, nil
}

func checkSymbols(name, syms string, op ila.Operator) error {
	if op > ila.OpReductionOr {
		return common.ProbeError(ila.ErrInvalidParam, name, "unknown operator %d", op)
	}
	for i := 0; i < len(syms); i++ {
		c := syms[i]
		if !ila.IsSymbol(c) || c != upper(c) {
			return common.ProbeError(ila.ErrInvalidSymbol, name, "invalid symbol %q at offset %d", c, i)
		}
		if !op.IsRelational() && op != ila.OpReductionOr {
			continue
		}
		if c == ila.SymZero || c == ila.SymOne {
			continue
		}
		if c == ila.SymDontCare && op == ila.OpReductionOr {
			continue
		}
		return common.ProbeError(ila.ErrInvalidSymbol, name, "symbol %q not allowed with operator %s", c, op)
	}
	return nil
}

// Check verifies a bound comparator received from elsewhere against a row of
// dataWidth bits, so that Match cannot index outside the row or the symbols.
func (c Comparator) Check(dataWidth int) error {
	if c.Width <= 0 || len(c.Symbols) != c.Width || len(c.Bits) != c.Width {
		return common.ProbeError(ila.ErrInvalidParam, c.Probe,
			"comparator of width %d has %d symbols and %d row bits", c.Width, len(c.Symbols), len(c.Bits))
	}
	if err := checkSymbols(c.Probe, c.Symbols, c.Op); err != nil {
		return common.ProbeError(ila.ErrInvalidParam, c.Probe, "%v", err)
	}
	for _, b := range c.Bits {
		if b < 0 || b >= dataWidth {
			return common.ProbeError(ila.ErrInvalidParam, c.Probe, "row bit %d outside a %d bit row", b, dataWidth)
		}
	}
	return nil
}

// Bind returns the comparator with row bit positions taken from m.
func (c Comparator) Bind(m *probe.Map) (Comparator, error) {
	bits, err := m.RowBits(c.Probe)
	if err != nil {
		return c, err
	}
	if len(bits) != c.Width {
		return c, common.ProbeError(ila.ErrMatchValueLengthMismatch, c.Probe, "comparator width %d, probe width %d", c.Width, len(bits))
	}
	c.Bits = append([]int(nil), bits...)
	return c, nil
}

func normalizeValue(p *probe.Probe, value string) (string, error) {
	if isLiteral(value) {
		lit, err := ParseLiteral(value)
		if err != nil {
			return "", common.ProbeError(ila.ErrInvalidSymbol, p.Name, "%v", err)
		}
		syms, err := lit.Fit(p.Width)
		if err != nil {
			return "", common.ProbeError(ila.ErrMatchValueLengthMismatch, p.Name, "%v", err)
		}
		return syms, nil
	}

	var sb strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if ila.IsSeparator(c) {
			continue
		}
		if !ila.IsSymbol(c) {
			return "", common.ProbeError(ila.ErrInvalidSymbol, p.Name, "invalid symbol %q at offset %d", c, i)
		}
		sb.WriteByte(upper(c))
	}
	syms := sb.String()
	if len(syms) != p.Width {
		return "", common.ProbeError(ila.ErrMatchValueLengthMismatch, p.Name,
			"match value %q has %d symbols, probe %q is %d bits wide", value, len(syms), p.Name, p.Width)
	}
	return syms, nil
}

// isLiteral reports whether value can only be read as a number.
func isLiteral(value string) bool {
	v := strings.TrimSpace(value)
	if strings.IndexByte(v, '\'') >= 0 {
		return true
	}
	if len(v) > 2 && v[0] == '0' && strings.IndexByte("xXbB", v[1]) >= 0 {
		return v[1] == 'x' || v[1] == 'X' || strings.Trim(v[2:], "01_") == ""
	}
	high := false
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= '2' && c <= '9':
			high = true
		case c == '0' || c == '1' || c == '_':
		default:
			return false
		}
	}
	return high
}

// Masks returns the hardware register image of the comparator.
func (c Comparator) Masks() Masks {
	m := Masks{
		Value:    new(big.Int),
		Care:     new(big.Int),
		Rise:     new(big.Int),
		Fall:     new(big.Int),
		Either:   new(big.Int),
		NoChange: new(big.Int),
	}
	n := len(c.Symbols)
	for i := 0; i < n; i++ {
		bit := n - 1 - i
		switch c.Symbols[i] {
		case ila.SymOne:
			m.Value.SetBit(m.Value, bit, 1)
			m.Care.SetBit(m.Care, bit, 1)
		case ila.SymZero:
			m.Care.SetBit(m.Care, bit, 1)
		case ila.SymRising:
			m.Rise.SetBit(m.Rise, bit, 1)
		case ila.SymFalling:
			m.Fall.SetBit(m.Fall, bit, 1)
		case ila.SymEither:
			m.Either.SetBit(m.Either, bit, 1)
		case ila.SymNoChange:
			m.NoChange.SetBit(m.NoChange, bit, 1)
		}
	}
	return m
}

// HasEdge returns true if the comparator needs the previous sample.
func (c Comparator) HasEdge() bool {
	for i := 0; i < len(c.Symbols); i++ {
		if ila.IsEdgeSymbol(c.Symbols[i]) {
			return true
		}
	}
	return false
}

// Match evaluates the comparator against a capture row. prev is the row
// before cur, or nil for the first sample, in which case no bit has changed.
// The comparator must be bound to row bits.
func (c Comparator) Match(prev, cur []byte) bool {
	if prev == nil {
		prev = cur
	}
	switch c.Op {
	case ila.OpEQ:
		return c.equal(prev, cur)
	case ila.OpNE:
		return !c.equal(prev, cur)
	case ila.OpReductionOr:
		for i, rb := range c.Bits {
			if c.Symbols[i] == ila.SymOne && probe.Bit(cur, rb) == 1 {
				return true
			}
		}
		return false
	}

	v := BitsValue(cur, c.Bits)
	ref, _ := new(big.Int).SetString(c.Symbols, 2)
	cmp := v.Cmp(ref)
	switch c.Op {
	case ila.OpLT:
		return cmp < 0
	case ila.OpLE:
		return cmp <= 0
	case ila.OpGT:
		return cmp > 0
	case ila.OpGE:
		return cmp >= 0
	}
	return false
}

func (c Comparator) equal(prev, cur []byte) bool {
	for i, rb := range c.Bits {
		p, v := probe.Bit(prev, rb), probe.Bit(cur, rb)
		var ok bool
		switch c.Symbols[i] {
		case ila.SymDontCare:
			ok = true
		case ila.SymZero:
			ok = v == 0
		case ila.SymOne:
			ok = v == 1
		case ila.SymRising:
			ok = p == 0 && v == 1
		case ila.SymFalling:
			ok = p == 1 && v == 0
		case ila.SymEither:
			ok = p != v
		case ila.SymNoChange:
			ok = p == v
		}
		if !ok {
			return false
		}
	}
	return true
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
