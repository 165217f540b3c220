package coredesc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

func testDesc() Description {
	return Description{
		Name:     "ila_0",
		Geometry: ila.DefaultGeometry(),
		Ports:    []probe.Port{{Index: 0, Width: 8}, {Index: 1, Width: 4}},
		Probes: []probe.Probe{
			{Name: "counter", Width: 8, Fragments: []probe.Fragment{{Port: 0, BusLeft: 7}}},
			{Name: "split", Width: 4, Fragments: []probe.Fragment{
				{Port: 1, PortBitOffset: 2, BusLeft: 3, BusRight: 2},
				{Port: 1, PortBitOffset: 0, BusLeft: 1, BusRight: 0},
			}},
		},
	}
}

const testText = `[core]
name = ila_0
data_depth = 1024
match_units = 4
max_window_size = 0
advanced_trigger = true
counters = 4
counter_width = 16
flags = 4
tsm_states = 16

[ports]
0 = 8
1 = 4

[probe counter]
width = 8
fragments = 0:0:7:0

[probe split]
width = 4
fragments = 1:2:3:2, 1:0:1:0
`

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := testDesc().WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(testText, buf.String()); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	d := testDesc()
	var buf bytes.Buffer
	if err := d.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	m, err := got.Map()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d, FromMap(m, d.Geometry)); diff != "" {
		t.Errorf("FromMap mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripCommentCharacters(t *testing.T) {
	d := testDesc()
	d.Name = "ila;0"
	d.Probes[0].Name = "u0/fifo#wr;en"
	var buf bytes.Buffer
	if err := d.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	d.Probes[1].Name = "split #2"
	if err := d.WriteText(&bytes.Buffer{}); err == nil {
		t.Error("WriteText accepted a probe name that reads back as a comment")
	}
}

func TestPairs(t *testing.T) {
	pairs := testDesc().Pairs()
	if len(pairs) != 9+2+4 {
		t.Fatalf("got %d pairs", len(pairs))
	}
	want := []Pair{
		{"ports.0", "8"},
		{"ports.1", "4"},
		{"probe.counter.width", "8"},
		{"probe.counter.fragments", "0:0:7:0"},
		{"probe.split.width", "4"},
		{"probe.split.fragments", "1:2:3:2, 1:0:1:0"},
	}
	if diff := cmp.Diff(want, pairs[9:]); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if pairs[0] != (Pair{"core.name", "ila_0"}) || pairs[4] != (Pair{"core.advanced_trigger", "true"}) {
		t.Errorf("core pairs: %v", pairs[:9])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		line int
	}{
		{"unknown core key", func(s string) string { return strings.Replace(s, "flags = 4", "flagz = 4", 1) }, 9},
		{"bad bool", func(s string) string { return strings.Replace(s, "= true", "= maybe", 1) }, 6},
		{"bad fragment", func(s string) string { return strings.Replace(s, "0:0:7:0", "0:0:7", 1) }, 18},
		{"width mismatch", func(s string) string { return strings.Replace(s, "width = 8", "width = 9", 1) }, 0},
		{"port too narrow", func(s string) string { return strings.Replace(s, "1 = 4", "1 = 2", 1) }, 0},
		{"missing name", func(s string) string { return strings.Replace(s, "name = ila_0\n", "", 1) }, 0},
		{"unknown section", func(s string) string { return s + "[extra]\nx = 1\n" }, 0},
		{"no section", func(s string) string { return "x = 1\n" + s }, 0},
		{"zero depth", func(s string) string { return strings.Replace(s, "= 1024", "= 0", 1) }, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.edit(testText)))
			if !errors.Is(err, ila.ErrDescriptionParse) {
				t.Fatalf("Parse = %v, want ErrDescriptionParse", err)
			}
			if tc.line > 0 && !strings.Contains(err.Error(), fmt.Sprintf("Pos=%d:", tc.line)) {
				t.Errorf("error %q does not point at line %d", err, tc.line)
			}
		})
	}
}
