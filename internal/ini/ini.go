// Package ini reads and writes the sectioned key = value text used for core
// descriptions and configuration files. Entry order is preserved in both
// directions so that a parsed file can be written back unchanged.
package ini

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Entry is a single key/value line and the section it appeared in.
type Entry struct {
	Section string
	Key     string
	Value   string
	Line    int
}

// File is an ordered list of entries plus the order sections were declared in.
// Sections without keys are still recorded in Sections.
type File struct {
	Sections []string
	Entries  []Entry
}

// Read parses r. Lines before the first section are rejected unless
// allowNoSection is set, in which case they are skipped.
func Read(r io.Reader, allowNoSection bool) (*File, error) {
	f := &File{}
	seen := map[string]bool{}
	section := ""
	lineNo := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimSpace(strings.TrimPrefix(line, "\uFEFF"))
		}
		line = stripComment(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if !seen[section] {
				seen[section] = true
				f.Sections = append(f.Sections, section)
			}
			continue
		}
		if section == "" {
			if allowNoSection {
				continue
			}
			return nil, fmt.Errorf("line %d: key outside of a section: %s", lineNo, line)
		}
		key, value, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid ini line: %s", lineNo, line)
		}
		f.Entries = append(f.Entries, Entry{Section: section, Key: key, Value: value, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Section returns the entries of one section in file order.
func (f *File) Section(name string) []Entry {
	var out []Entry
	for _, e := range f.Entries {
		if e.Section == name {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the first value for key in section.
func (f *File) Lookup(section, key string) (string, bool) {
	for _, e := range f.Entries {
		if e.Section == section && e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Add appends an entry, declaring the section if it is new.
func (f *File) Add(section, key, value string) {
	f.AddSection(section)
	f.Entries = append(f.Entries, Entry{Section: section, Key: key, Value: value})
}

// AddSection declares a section without adding keys to it.
func (f *File) AddSection(section string) {
	for _, s := range f.Sections {
		if s == section {
			return
		}
	}
	f.Sections = append(f.Sections, section)
}

// stripComment drops a comment line, or a trailing comment that starts with
// ';' or '#' after whitespace. Other ';' and '#' characters are content.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != ';' && line[i] != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// checkText rejects text that Read would not return unchanged.
func checkText(what, s string) error {
	if strings.ContainsAny(s, "\r\n") || strings.TrimSpace(s) != s {
		return fmt.Errorf("ini: %s %q has line breaks or surrounding space", what, s)
	}
	if s != stripComment(s) || strings.HasPrefix(s, ";") || strings.HasPrefix(s, "#") {
		return fmt.Errorf("ini: %s %q would be read as a comment", what, s)
	}
	return nil
}

// Write emits the file grouped by section in declaration order. Sections,
// keys and values that would not read back unchanged are rejected.
func (f *File) Write(w io.Writer) error {
	for _, s := range f.Sections {
		if err := checkText("section", s); err != nil {
			return err
		}
	}
	for _, e := range f.Entries {
		if err := checkText("key", e.Key); err != nil {
			return err
		}
		if e.Key == "" || strings.Contains(e.Key, "=") {
			return fmt.Errorf("ini: invalid key %q", e.Key)
		}
		if err := checkText("value", e.Value); err != nil {
			return err
		}
	}
	bw := bufio.NewWriter(w)
	for i, s := range f.Sections {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		fmt.Fprintf(bw, "[%s]\n", s)
		for _, e := range f.Entries {
			if e.Section == s {
				fmt.Fprintf(bw, "%s = %s\n", e.Key, e.Value)
			}
		}
	}
	return bw.Flush()
}

func splitKV(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// SplitCSV splits a comma separated value, dropping empty items.
func SplitCSV(value string) []string {
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// TrimQuotes removes surrounding quote characters.
func TrimQuotes(value string) string {
	return strings.Trim(strings.TrimSpace(value), "\"'")
}
