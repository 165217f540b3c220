// Package coredesc holds the static description of an ILA instance: its
// capacities, port widths and probe layout. The same model is exposed as an
// ordered list of key/value pairs and as INI text that parses back to an
// equal Description.
package coredesc

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/ini"
	"chipscope/internal/probe"
)

// Description is everything the host knows about a core before any capture.
type Description struct {
	Name     string
	Geometry ila.Geometry
	Ports    []probe.Port
	Probes   []probe.Probe
}

// FromMap describes an already loaded probe map.
func FromMap(m *probe.Map, g ila.Geometry) Description {
	return Description{
		Name:     m.Name(),
		Geometry: g,
		Ports:    m.Ports(),
		Probes:   m.Probes(),
	}
}

// Map builds the probe map of the description.
func (d Description) Map() (*probe.Map, error) {
	return probe.NewMap(d.Name, d.Ports, d.Probes)
}

// Pair is one entry of the ordered key/value view. Keys are
// "<section>.<key>", with probe sections named "probe.<probe name>".
type Pair struct {
	Key   string
	Value string
}

// Pairs returns the description as ordered key/value pairs, in the same order
// WriteText emits them.
func (d Description) Pairs() []Pair {
	f := d.file()
	out := make([]Pair, 0, len(f.Entries))
	for _, e := range f.Entries {
		section := e.Section
		if name, ok := strings.CutPrefix(section, ProbeSectionPrefix); ok {
			section = "probe." + name
		}
		out = append(out, Pair{Key: section + "." + e.Key, Value: e.Value})
	}
	return out
}

// WriteText writes the description as INI text.
func (d Description) WriteText(w io.Writer) error {
	return d.file().Write(w)
}

func (d Description) file() *ini.File {
	f := &ini.File{}
	g := d.Geometry
	f.Add(CoreSectionName, NameKey, d.Name)
	f.Add(CoreSectionName, DataDepthKey, strconv.Itoa(g.DataDepth))
	f.Add(CoreSectionName, MatchUnitsKey, strconv.Itoa(g.MatchUnits))
	f.Add(CoreSectionName, MaxWindowSizeKey, strconv.Itoa(g.MaxWindowSize))
	f.Add(CoreSectionName, AdvancedTriggerKey, strconv.FormatBool(g.AdvancedTrigger))
	f.Add(CoreSectionName, CountersKey, strconv.Itoa(g.Counters))
	f.Add(CoreSectionName, CounterWidthKey, strconv.Itoa(g.CounterWidth))
	f.Add(CoreSectionName, FlagsKey, strconv.Itoa(g.Flags))
	f.Add(CoreSectionName, TsmStatesKey, strconv.Itoa(g.TsmStates))

	f.AddSection(PortsSectionName)
	for _, p := range d.Ports {
		f.Add(PortsSectionName, strconv.Itoa(p.Index), strconv.Itoa(p.Width))
	}
	for _, p := range d.Probes {
		sec := ProbeSectionPrefix + p.Name
		frags := make([]string, len(p.Fragments))
		for i, fr := range p.Fragments {
			frags[i] = fr.String()
		}
		f.Add(sec, WidthKey, strconv.Itoa(p.Width))
		f.Add(sec, FragmentsKey, strings.Join(frags, ", "))
	}
	return f
}

// Parse reads a description written by WriteText. The result is checked by
// building its probe map; any problem is reported as ErrDescriptionParse.
func Parse(r io.Reader) (Description, error) {
	f, err := ini.Read(r, false)
	if err != nil {
		return Description{}, common.Errorf(ila.ErrDescriptionParse, "%v", err)
	}
	var d Description
	if err := parseCore(f, &d); err != nil {
		return Description{}, err
	}
	if err := parsePorts(f, &d); err != nil {
		return Description{}, err
	}
	for _, sec := range f.Sections {
		name, ok := strings.CutPrefix(sec, ProbeSectionPrefix)
		if !ok {
			if sec != CoreSectionName && sec != PortsSectionName {
				return Description{}, common.Errorf(ila.ErrDescriptionParse, "unknown section [%s]", sec)
			}
			continue
		}
		p, err := parseProbe(f, sec, strings.TrimSpace(name))
		if err != nil {
			return Description{}, err
		}
		d.Probes = append(d.Probes, p)
	}
	if err := d.Geometry.Validate(); err != nil {
		return Description{}, common.Errorf(ila.ErrDescriptionParse, "core %s: %v", d.Name, err)
	}
	if _, err := d.Map(); err != nil {
		return Description{}, common.Errorf(ila.ErrDescriptionParse, "core %s: %v", d.Name, err)
	}
	return d, nil
}

func parseError(e ini.Entry, format string, args ...any) error {
	return common.Errorf(ila.ErrDescriptionParse, format, args...).WithPos(e.Line, 1)
}

func parseCore(f *ini.File, d *Description) error {
	seen := map[string]bool{}
	for _, e := range f.Section(CoreSectionName) {
		if seen[e.Key] {
			return parseError(e, "duplicate key %q in [%s]", e.Key, CoreSectionName)
		}
		seen[e.Key] = true
		if e.Key == NameKey {
			d.Name = ini.TrimQuotes(e.Value)
			continue
		}
		if e.Key == AdvancedTriggerKey {
			b, err := strconv.ParseBool(e.Value)
			if err != nil {
				return parseError(e, "%s: %q is not a boolean", e.Key, e.Value)
			}
			d.Geometry.AdvancedTrigger = b
			continue
		}
		dst := map[string]*int{
			DataDepthKey:     &d.Geometry.DataDepth,
			MatchUnitsKey:    &d.Geometry.MatchUnits,
			MaxWindowSizeKey: &d.Geometry.MaxWindowSize,
			CountersKey:      &d.Geometry.Counters,
			CounterWidthKey:  &d.Geometry.CounterWidth,
			FlagsKey:         &d.Geometry.Flags,
			TsmStatesKey:     &d.Geometry.TsmStates,
		}[e.Key]
		if dst == nil {
			return parseError(e, "unknown key %q in [%s]", e.Key, CoreSectionName)
		}
		n, err := strconv.Atoi(e.Value)
		if err != nil || n < 0 {
			return parseError(e, "%s: %q is not a non-negative integer", e.Key, e.Value)
		}
		*dst = n
	}
	if d.Name == "" {
		return common.Errorf(ila.ErrDescriptionParse, "missing [%s] %s", CoreSectionName, NameKey)
	}
	return nil
}

func parsePorts(f *ini.File, d *Description) error {
	for _, e := range f.Section(PortsSectionName) {
		idx, err := strconv.Atoi(e.Key)
		if err != nil {
			return parseError(e, "port index %q is not an integer", e.Key)
		}
		w, err := strconv.Atoi(e.Value)
		if err != nil {
			return parseError(e, "port %d: width %q is not an integer", idx, e.Value)
		}
		d.Ports = append(d.Ports, probe.Port{Index: idx, Width: w})
	}
	if len(d.Ports) == 0 {
		return common.Errorf(ila.ErrDescriptionParse, "core %s declares no ports", d.Name)
	}
	return nil
}

func parseProbe(f *ini.File, sec, name string) (probe.Probe, error) {
	p := probe.Probe{Name: name}
	for _, e := range f.Section(sec) {
		switch e.Key {
		case WidthKey:
			w, err := strconv.Atoi(e.Value)
			if err != nil {
				return p, parseError(e, "probe %q: width %q is not an integer", name, e.Value)
			}
			p.Width = w
		case FragmentsKey:
			for _, item := range ini.SplitCSV(e.Value) {
				fr, err := parseFragment(item)
				if err != nil {
					return p, parseError(e, "probe %q: %v", name, err)
				}
				p.Fragments = append(p.Fragments, fr)
			}
		default:
			return p, parseError(e, "unknown key %q for probe %q", e.Key, name)
		}
	}
	if p.Width == 0 || len(p.Fragments) == 0 {
		return p, common.ProbeError(ila.ErrDescriptionParse, name, "probe needs %s and %s", WidthKey, FragmentsKey)
	}
	return p, nil
}

// parseFragment reads "port:offset:left:right".
func parseFragment(s string) (probe.Fragment, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return probe.Fragment{}, fmt.Errorf("fragment %q: want port:offset:left:right", s)
	}
	var n [4]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 {
			return probe.Fragment{}, fmt.Errorf("fragment %q: bad field %q", s, part)
		}
		n[i] = v
	}
	return probe.Fragment{Port: n[0], PortBitOffset: n[1], BusLeft: n[2], BusRight: n[3]}, nil
}
