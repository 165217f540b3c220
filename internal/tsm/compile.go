package tsm

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

// Diagnostic is one compiler message.
type Diagnostic struct {
	Pos Pos
	Msg string
}

func (d Diagnostic) String() string { return d.Pos.String() + ": " + d.Msg }

// Options controls compilation.
type Options struct {
	// CompileOnly runs every check but never returns a program.
	CompileOnly bool
}

// Result is the outcome of a compilation. Program is nil whenever
// ErrorCount is non-zero.
type Result struct {
	Program    *Program
	ErrorCount int
	Errors     []Diagnostic
}

// OK returns true if the program compiled without errors.
func (r *Result) OK() bool { return r.ErrorCount == 0 }

// Report renders the diagnostics one per line, ordered by position.
func (r *Result) Report() string {
	var sb strings.Builder
	for _, d := range r.Errors {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Err returns nil on success, otherwise a TsmNotCompiled error summarising
// the report.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	e := common.Errorf(ila.ErrTsmNotCompiled, "%d error(s); first: %s", r.ErrorCount, r.Errors[0])
	return e.WithPos(r.Errors[0].Pos.Line, r.Errors[0].Pos.Col)
}

// Compile lexes, parses and validates a state machine program against the
// probe map and core geometry. It never stops at the first error.
func Compile(r io.Reader, m *probe.Map, g ila.Geometry, opts Options) *Result {
	res := &Result{}
	toks, diags, err := lex(r)
	if err != nil {
		res.Errors = []Diagnostic{{Msg: fmt.Sprintf("Read error: %v", err)}}
		res.ErrorCount = 1
		return res
	}

	p := &parser{toks: toks}
	prog := p.parseProgram()
	diags = append(diags, p.diags...)

	c := &checker{m: m, g: g}
	c.check(prog)
	diags = append(diags, c.diags...)

	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Pos.Before(diags[j].Pos) })
	res.Errors = diags
	res.ErrorCount = len(diags)
	if res.ErrorCount == 0 && !opts.CompileOnly {
		res.Program = prog
	}
	return res
}

// CompileString is Compile over in-memory source.
func CompileString(src string, m *probe.Map, g ila.Geometry, opts Options) *Result {
	return Compile(strings.NewReader(src), m, g, opts)
}

// CompileFile compiles the program stored at path.
func CompileFile(path string, m *probe.Map, g ila.Geometry, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Compile(f, m, g, opts), nil
}
