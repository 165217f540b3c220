package waveform

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chipscope/internal/codec"
)

// WriteCSV writes d as a table with one header row naming the columns and
// one radix row, followed by a row per sample. Probe values are hex.
func WriteCSV(w io.Writer, d *Data) error {
	cw := csv.NewWriter(w)
	var header, radix []string
	if d.SampleIndex != nil {
		header = append(header, "Sample in Buffer", "Sample in Window", "Window")
		radix = append(radix, "UNSIGNED", "UNSIGNED", "UNSIGNED")
	}
	if d.Trigger != nil {
		header = append(header, "TRIGGER")
		radix = append(radix, "UNSIGNED")
	}
	for _, c := range d.Probes {
		header = append(header, c.Name)
		radix = append(radix, "HEX")
		if c.Activity != nil {
			header = append(header, c.Name+" (activity)")
			radix = append(radix, "ACTIVITY")
		}
	}
	if len(radix) > 0 {
		radix[0] = "Radix - " + radix[0]
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(radix); err != nil {
		return err
	}

	rec := make([]string, 0, len(header))
	for r := 0; r < d.Len(); r++ {
		rec = rec[:0]
		if d.SampleIndex != nil {
			rec = append(rec,
				strconv.Itoa(d.SampleIndex[r]),
				strconv.Itoa(d.WindowSampleIndex[r]),
				strconv.Itoa(d.WindowIndex[r]))
		}
		if d.Trigger != nil {
			rec = append(rec, boolBit(d.Trigger[r]))
		}
		for _, c := range d.Probes {
			rec = append(rec, codec.FormatHex(c.Values[r], c.Width))
			if c.Activity != nil {
				rec = append(rec, c.Activity[r])
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteVCD writes d as a value change dump. Each sample is one time step of
// the given timescale, for example "1ns". Only changes are emitted.
func WriteVCD(w io.Writer, d *Data, timescale string) error {
	if timescale == "" {
		timescale = "1ns"
	}
	bw := bufio.NewWriter(w)
	scope := vcdName(d.Name)
	if scope == "" {
		scope = "ila"
	}
	fmt.Fprintf(bw, "$version chipscope $end\n")
	fmt.Fprintf(bw, "$timescale %s $end\n", timescale)
	fmt.Fprintf(bw, "$scope module %s $end\n", scope)

	ids := make([]string, len(d.Probes))
	for i, c := range d.Probes {
		ids[i] = vcdID(i)
		fmt.Fprintf(bw, "$var wire %d %s %s $end\n", c.Width, ids[i], vcdName(c.Name))
	}
	trigID := vcdID(len(d.Probes))
	if d.Trigger != nil {
		fmt.Fprintf(bw, "$var wire 1 %s TRIGGER $end\n", trigID)
	}
	fmt.Fprintf(bw, "$upscope $end\n$enddefinitions $end\n")

	last := make([]string, len(d.Probes))
	lastTrig := ""
	for r := 0; r < d.Len(); r++ {
		t := r
		if d.SampleIndex != nil {
			t = d.SampleIndex[r]
		}
		stamped := false
		stamp := func() {
			if !stamped {
				fmt.Fprintf(bw, "#%d\n", t)
				stamped = true
			}
		}
		for i, c := range d.Probes {
			v := vcdValue(codec.FormatBits(c.Values[r], c.Width), ids[i])
			if v != last[i] {
				stamp()
				bw.WriteString(v)
				last[i] = v
			}
		}
		if d.Trigger != nil {
			v := boolBit(d.Trigger[r]) + trigID + "\n"
			if v != lastTrig {
				stamp()
				bw.WriteString(v)
				lastTrig = v
			}
		}
	}
	return bw.Flush()
}

func vcdValue(bits, id string) string {
	if len(bits) == 1 {
		return bits + id + "\n"
	}
	return "b" + bits + " " + id + "\n"
}

// vcdID returns the n-th short identifier over the printable range '!'..'~'.
func vcdID(n int) string {
	const first, count = '!', '~' - '!' + 1
	var b []byte
	for {
		b = append(b, byte(first+n%count))
		n /= count
		if n == 0 {
			break
		}
		n--
	}
	return string(b)
}

func vcdName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return '_'
		}
		return r
	}, s)
}

func boolBit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
