package probe

import (
	"math/big"

	"chipscope/internal/common"
	"chipscope/internal/ila"
)

// NewRow returns a zeroed capture row sized for the map.
func (m *Map) NewRow() []byte { return make([]byte, m.RowBytes()) }

// Put writes v into the bits of the named probe within row. Bits of v above
// the probe width are an error.
func (m *Map) Put(row []byte, name string, v *big.Int) error {
	bits, err := m.RowBits(name)
	if err != nil {
		return err
	}
	if v.Sign() < 0 || v.BitLen() > len(bits) {
		return common.ProbeError(ila.ErrInvalidParam, name, "value %s does not fit in %d bits", v, len(bits))
	}
	n := len(bits)
	for i, rb := range bits {
		SetBit(row, rb, byte(v.Bit(n-1-i)))
	}
	return nil
}

// Row builds a capture row from probe values. Probes not named are zero.
func (m *Map) Row(values map[string]uint64) ([]byte, error) {
	row := m.NewRow()
	for name, v := range values {
		if err := m.Put(row, name, new(big.Int).SetUint64(v)); err != nil {
			return nil, err
		}
	}
	return row, nil
}
