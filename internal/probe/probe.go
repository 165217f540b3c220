// Package probe describes the logical probes of one ILA instance and how
// their bits map onto the hardware capture ports.
package probe

import (
	"fmt"

	"chipscope/internal/common"
	"chipscope/internal/ila"
)

// Port is one hardware probe port. The capture row is the concatenation of
// all ports in index order, port 0 starting at row bit 0.
type Port struct {
	Index int
	Width int
}

// Fragment maps a contiguous bus range of a probe onto a port. The BusRight
// bit lives at PortBitOffset, BusLeft at PortBitOffset+Width()-1.
type Fragment struct {
	Port          int
	PortBitOffset int
	BusLeft       int
	BusRight      int
}

// Width returns the number of bits in the fragment.
func (f Fragment) Width() int {
	if f.BusLeft >= f.BusRight {
		return f.BusLeft - f.BusRight + 1
	}
	return f.BusRight - f.BusLeft + 1
}

func (f Fragment) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", f.Port, f.PortBitOffset, f.BusLeft, f.BusRight)
}

// Probe is a named logical signal. Fragments are ordered most significant first.
type Probe struct {
	Name      string
	Width     int
	Fragments []Fragment
}

// IsBus returns true for multi-bit probes.
func (p *Probe) IsBus() bool { return p.Width > 1 }

// Map is the immutable probe map of one ILA instance.
type Map struct {
	name      string
	ports     []Port
	portBase  []int
	dataWidth int
	probes    []*Probe
	byName    map[string]*Probe
	rowBits   map[string][]int
}

// NewMap validates ports and probes and builds the map. Ports must be given
// with contiguous indexes starting at 0.
func NewMap(name string, ports []Port, probes []Probe) (*Map, error) {
	m := &Map{
		name:    name,
		byName:  make(map[string]*Probe, len(probes)),
		rowBits: make(map[string][]int, len(probes)),
	}

	for i, p := range ports {
		if p.Index != i {
			return nil, common.Errorf(ila.ErrInvalidParam, "port %d declared at position %d", p.Index, i)
		}
		if p.Width <= 0 {
			return nil, common.Errorf(ila.ErrInvalidParam, "port %d width %d must be positive", p.Index, p.Width)
		}
		m.ports = append(m.ports, p)
		m.portBase = append(m.portBase, m.dataWidth)
		m.dataWidth += p.Width
	}

	owner := make(map[int]string)
	for i := range probes {
		p := probes[i]
		if p.Name == "" {
			return nil, common.Errorf(ila.ErrInvalidParam, "probe %d has no name", i)
		}
		if _, dup := m.byName[p.Name]; dup {
			return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "duplicate probe name")
		}
		bits, err := m.layout(&p, owner)
		if err != nil {
			return nil, err
		}
		p.Fragments = append([]Fragment(nil), p.Fragments...)
		m.probes = append(m.probes, &p)
		m.byName[p.Name] = &p
		m.rowBits[p.Name] = bits
	}
	return m, nil
}

// layout checks the fragments of p and returns the row bit of every probe
// bit, most significant first.
func (m *Map) layout(p *Probe, owner map[int]string) ([]int, error) {
	if len(p.Fragments) == 0 {
		return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "probe has no fragments")
	}
	total := 0
	bits := make([]int, 0, p.Width)
	for _, f := range p.Fragments {
		if f.Port < 0 || f.Port >= len(m.ports) {
			return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "fragment %s references unknown port", f)
		}
		w := f.Width()
		if f.PortBitOffset < 0 || f.PortBitOffset+w > m.ports[f.Port].Width {
			return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "fragment %s exceeds port width %d", f, m.ports[f.Port].Width)
		}
		base := m.portBase[f.Port] + f.PortBitOffset
		for i := w - 1; i >= 0; i-- {
			rb := base + i
			if other, taken := owner[rb]; taken && other != p.Name {
				return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "port %d bit %d already used by probe %q", f.Port, f.PortBitOffset+i, other)
			}
			owner[rb] = p.Name
			bits = append(bits, rb)
		}
		total += w
	}
	if total != p.Width {
		return nil, common.ProbeError(ila.ErrInvalidParam, p.Name, "fragments cover %d bits, probe width is %d", total, p.Width)
	}
	return bits, nil
}

// Name returns the instance name the map was loaded for.
func (m *Map) Name() string { return m.name }

// Ports returns a copy of the port list.
func (m *Map) Ports() []Port { return append([]Port(nil), m.ports...) }

// DataWidth returns the capture row width, the sum of all port widths.
func (m *Map) DataWidth() int { return m.dataWidth }

// RowBytes returns the number of bytes used to store one capture row.
func (m *Map) RowBytes() int { return (m.dataWidth + 7) / 8 }

// Len returns the number of probes.
func (m *Map) Len() int { return len(m.probes) }

// Names returns the probe names in declaration order.
func (m *Map) Names() []string {
	names := make([]string, len(m.probes))
	for i, p := range m.probes {
		names[i] = p.Name
	}
	return names
}

// Probes returns copies of all probes in declaration order.
func (m *Map) Probes() []Probe {
	out := make([]Probe, len(m.probes))
	for i, p := range m.probes {
		out[i] = *p
		out[i].Fragments = append([]Fragment(nil), p.Fragments...)
	}
	return out
}

// Probe returns the named probe.
func (m *Map) Probe(name string) (*Probe, error) {
	p, ok := m.byName[name]
	if !ok {
		return nil, unknown(name)
	}
	return p, nil
}

// Has reports whether name is a probe of this instance.
func (m *Map) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Resolve returns the bit fragments of the named probe.
func (m *Map) Resolve(name string) ([]Fragment, error) {
	p, ok := m.byName[name]
	if !ok {
		return nil, unknown(name)
	}
	return append([]Fragment(nil), p.Fragments...), nil
}

// Width returns the bit width of the named probe.
func (m *Map) Width(name string) (int, error) {
	p, ok := m.byName[name]
	if !ok {
		return 0, unknown(name)
	}
	return p.Width, nil
}

// RowBits returns the capture row bit index of each probe bit, most
// significant first. The returned slice must not be modified.
func (m *Map) RowBits(name string) ([]int, error) {
	bits, ok := m.rowBits[name]
	if !ok {
		return nil, unknown(name)
	}
	return bits, nil
}

func unknown(name string) error {
	return common.ProbeError(ila.ErrUnknownProbe, name, "Undefined probe: %q", name)
}

// Bit returns bit n of a little endian packed capture row.
func Bit(row []byte, n int) byte {
	if n/8 >= len(row) {
		return 0
	}
	return (row[n/8] >> (n % 8)) & 1
}

// SetBit sets bit n of a little endian packed capture row to v.
func SetBit(row []byte, n int, v byte) {
	if v != 0 {
		row[n/8] |= 1 << (n % 8)
	} else {
		row[n/8] &^= 1 << (n % 8)
	}
}
