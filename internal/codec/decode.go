package codec

import (
	"fmt"
	"math/big"
	"strings"

	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

// DecodeSample extracts the named probe from a capture row as an unsigned
// integer. Fragments are concatenated most significant first.
func DecodeSample(m *probe.Map, row []byte, name string) (*big.Int, error) {
	bits, err := m.RowBits(name)
	if err != nil {
		return nil, err
	}
	return BitsValue(row, bits), nil
}

// ExtractBits returns the probe's bits from a row as a 0/1 string, most
// significant first.
func ExtractBits(m *probe.Map, row []byte, name string) (string, error) {
	bits, err := m.RowBits(name)
	if err != nil {
		return "", err
	}
	return BitsString(row, bits), nil
}

// DecodeActivity compares two adjacent rows bit by bit. prev may be nil for
// the first sample of a capture, which reports no activity.
func DecodeActivity(m *probe.Map, prev, cur []byte, name string) (string, error) {
	bits, err := m.RowBits(name)
	if err != nil {
		return "", err
	}
	return BitsActivity(prev, cur, bits), nil
}

// DecodeActivityWindow aggregates activity over consecutive rows. A bit that
// both rises and falls between adjacent pairs inside the window reports B.
func DecodeActivityWindow(m *probe.Map, rows [][]byte, name string) (string, error) {
	bits, err := m.RowBits(name)
	if err != nil {
		return "", err
	}
	return WindowActivity(rows, bits), nil
}

// BitsValue packs the row bits listed in bits, most significant first.
func BitsValue(row []byte, bits []int) *big.Int {
	v := new(big.Int)
	if len(bits) <= 64 {
		var u uint64
		for _, rb := range bits {
			u = u<<1 | uint64(probe.Bit(row, rb))
		}
		return v.SetUint64(u)
	}
	n := len(bits)
	for i, rb := range bits {
		if probe.Bit(row, rb) == 1 {
			v.SetBit(v, n-1-i, 1)
		}
	}
	return v
}

// BitsString renders the row bits listed in bits as a 0/1 string.
func BitsString(row []byte, bits []int) string {
	b := make([]byte, len(bits))
	for i, rb := range bits {
		b[i] = '0' + probe.Bit(row, rb)
	}
	return string(b)
}

// BitsActivity returns one of N, R or F per bit.
func BitsActivity(prev, cur []byte, bits []int) string {
	b := make([]byte, len(bits))
	for i, rb := range bits {
		b[i] = ila.ActNone
		if prev == nil {
			continue
		}
		p, c := probe.Bit(prev, rb), probe.Bit(cur, rb)
		switch {
		case p == 0 && c == 1:
			b[i] = ila.ActRising
		case p == 1 && c == 0:
			b[i] = ila.ActFalling
		}
	}
	return string(b)
}

// WindowActivity returns one of N, R, F or B per bit across all adjacent
// pairs of rows.
func WindowActivity(rows [][]byte, bits []int) string {
	b := make([]byte, len(bits))
	for i, rb := range bits {
		var rise, fall bool
		for j := 1; j < len(rows); j++ {
			p, c := probe.Bit(rows[j-1], rb), probe.Bit(rows[j], rb)
			rise = rise || (p == 0 && c == 1)
			fall = fall || (p == 1 && c == 0)
		}
		switch {
		case rise && fall:
			b[i] = ila.ActBoth
		case rise:
			b[i] = ila.ActRising
		case fall:
			b[i] = ila.ActFalling
		default:
			b[i] = ila.ActNone
		}
	}
	return string(b)
}

// FormatBits renders v as a zero padded binary string of the given width.
func FormatBits(v *big.Int, width int) string {
	s := v.Text(2)
	if len(s) >= width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}

// FormatHex renders v as zero padded hex digits covering width bits.
func FormatHex(v *big.Int, width int) string {
	digits := (width + 3) / 4
	return fmt.Sprintf("%0*x", digits, v)
}

// ToSigned reinterprets an unsigned width-bit value as two's complement.
func ToSigned(v *big.Int, width int) *big.Int {
	if width <= 0 || v.Bit(width-1) == 0 {
		return new(big.Int).Set(v)
	}
	full := new(big.Int).Lsh(big.NewInt(1), uint(width))
	return new(big.Int).Sub(v, full)
}
