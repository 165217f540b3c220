package ini

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRead(t *testing.T) {
	text := "\uFEFF; generated\n" +
		"[core]\n" +
		"name = ila_0   # inline comment\n" +
		"data_depth=1024\n" +
		"\n" +
		"[empty]\n" +
		"[probe counter]\n" +
		"fragments = 0:0:7:0, 0:8:15:8\n"

	f, err := Read(strings.NewReader(text), false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	wantSections := []string{"core", "empty", "probe counter"}
	if diff := cmp.Diff(wantSections, f.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	wantEntries := []Entry{
		{Section: "core", Key: "name", Value: "ila_0", Line: 3},
		{Section: "core", Key: "data_depth", Value: "1024", Line: 4},
		{Section: "probe counter", Key: "fragments", Value: "0:0:7:0, 0:8:15:8", Line: 8},
	}
	if diff := cmp.Diff(wantEntries, f.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if v, ok := f.Lookup("core", "data_depth"); !ok || v != "1024" {
		t.Errorf("Lookup = %q, %v", v, ok)
	}
	if got := len(f.Section("core")); got != 2 {
		t.Errorf("Section(core) has %d entries, want 2", got)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		noSect  bool
		wantErr bool
	}{
		{"key before section", "a = 1\n[s]\n", false, true},
		{"key before section allowed", "a = 1\n[s]\nb = 2\n", true, false},
		{"missing equals", "[s]\nnot a pair\n", false, true},
		{"empty key", "[s]\n = 3\n", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.text), tc.noSect)
			if (err != nil) != tc.wantErr {
				t.Errorf("Read error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	f := &File{}
	f.Add("servers", "hw_server", "localhost:3121")
	f.Add("servers", "cs_server", "localhost:3042")
	f.AddSection("session")
	f.Add("session", "poll_interval", "100ms")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "[servers]\nhw_server = localhost:3121\ncs_server = localhost:3042\n\n[session]\npoll_interval = 100ms\n"
	if buf.String() != want {
		t.Errorf("Write output:\n%s\nwant:\n%s", buf.String(), want)
	}

	back, err := Read(&buf, false)
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if diff := cmp.Diff(f.Sections, back.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	for i := range back.Entries {
		back.Entries[i].Line = 0
	}
	if diff := cmp.Diff(f.Entries, back.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestCommentMarkersInContent(t *testing.T) {
	text := "[probe a;b#c] ; trailing\n" +
		"name = x#1;y\t# comment\n" +
		"# name = hidden\n" +
		"path = /tmp/c#\n"
	f, err := Read(strings.NewReader(text), false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []Entry{
		{Section: "probe a;b#c", Key: "name", Value: "x#1;y", Line: 2},
		{Section: "probe a;b#c", Key: "path", Value: "/tmp/c#", Line: 4},
	}
	if diff := cmp.Diff(want, f.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRejectsUnreadableText(t *testing.T) {
	tests := []struct {
		name                string
		section, key, value string
	}{
		{"comment in value", "s", "k", "a ;b"},
		{"value starts a comment", "s", "k", "#a"},
		{"comment in section", "probe x #y", "k", "v"},
		{"key starts a comment", "s", ";k", "v"},
		{"equals in key", "s", "a=b", "v"},
		{"line break", "s", "k", "a\nb"},
		{"padded value", "s", "k", " v"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &File{}
			f.Add(tc.section, tc.key, tc.value)
			var buf bytes.Buffer
			if err := f.Write(&buf); err == nil {
				t.Errorf("Write accepted %q/%q/%q:\n%s", tc.section, tc.key, tc.value, buf.String())
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, ,b ,c,")
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("SplitCSV mismatch (-want +got):\n%s", diff)
	}
	if TrimQuotes(` "x" `) != "x" {
		t.Error("TrimQuotes failed")
	}
}
