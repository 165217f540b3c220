package trigger

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/tsm"
)

func testMap(t *testing.T) *probe.Map {
	t.Helper()
	m, err := probe.NewMap("ila_0",
		[]probe.Port{{Index: 0, Width: 8}, {Index: 1, Width: 2}},
		[]probe.Probe{
			{Name: "data", Width: 8, Fragments: []probe.Fragment{{Port: 0, PortBitOffset: 0, BusLeft: 7, BusRight: 0}}},
			{Name: "valid", Width: 1, Fragments: []probe.Fragment{{Port: 1, PortBitOffset: 0}}},
			{Name: "ready", Width: 1, Fragments: []probe.Fragment{{Port: 1, PortBitOffset: 1}}},
		})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

func clause(t *testing.T, m *probe.Map, name, value string, op ila.Operator) *Cond {
	t.Helper()
	c, err := Clause(m, name, value, op)
	if err != nil {
		t.Fatalf("Clause(%s, %s): %v", name, value, err)
	}
	return c
}

func TestBuildBasic(t *testing.T) {
	m := testMap(t)
	g := ila.DefaultGeometry()

	cond := Or(
		And(clause(t, m, "valid", "1", ila.OpEQ), clause(t, m, "ready", "1", ila.OpEQ)),
		clause(t, m, "data", "8'hA5", ila.OpEQ),
	)
	spec, err := BuildBasic(cond, g)
	if err != nil {
		t.Fatalf("BuildBasic: %v", err)
	}
	if spec.Mode != ila.TriggerBasic || cond.Clauses() != 3 {
		t.Errorf("mode=%v clauses=%d", spec.Mode, cond.Clauses())
	}
	if diff := cmp.Diff([]string{"valid", "ready", "data"}, spec.Probes()); diff != "" {
		t.Errorf("Probes mismatch (-want +got):\n%s", diff)
	}

	row := func(data, valid, ready uint64) []byte {
		r, err := m.Row(map[string]uint64{"data": data, "valid": valid, "ready": ready})
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	tests := []struct {
		name string
		cur  []byte
		want bool
	}{
		{"handshake", row(0, 1, 1), true},
		{"valid only", row(0, 1, 0), false},
		{"data", row(0xA5, 0, 0), true},
		{"neither", row(0xA4, 0, 1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := spec.Eval(nil, tc.cur); got != tc.want {
				t.Errorf("Eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildBasicErrors(t *testing.T) {
	m := testMap(t)
	g := ila.DefaultGeometry()
	g.MatchUnits = 2

	v := clause(t, m, "valid", "1", ila.OpEQ)
	tooMany := And(v, Or(v, clause(t, m, "data", "XXXXXXX1", ila.OpEQ)))
	if _, err := BuildBasic(tooMany, g); !errors.Is(err, ila.ErrTooManyMatchUnits) {
		t.Errorf("3 clauses on 2 units: %v", err)
	}
	if _, err := BuildBasic(nil, g); !errors.Is(err, ila.ErrInvalidParam) {
		t.Errorf("nil cond: %v", err)
	}
	if _, err := BuildBasic(And(), g); !errors.Is(err, ila.ErrInvalidParam) {
		t.Errorf("empty group: %v", err)
	}

	_, err := Clause(m, "nope", "1", ila.OpEQ)
	if !errors.Is(err, ila.ErrUnknownProbe) {
		t.Errorf("unknown probe: %v", err)
	}
	_, err = Clause(m, "data", "1010", ila.OpEQ)
	var ce *common.Error
	if !errors.As(err, &ce) || ce.Code != ila.ErrMatchValueLengthMismatch || ce.Probe != "data" {
		t.Errorf("short value: %v", err)
	}
}

func TestBuildImmediate(t *testing.T) {
	s := BuildImmediate()
	if s.Mode != ila.TriggerImmediate || !s.Eval(nil, []byte{0}) || s.Validate(ila.DefaultGeometry(), 8) != nil {
		t.Errorf("immediate spec = %+v", s)
	}
	if s.Probes() != nil {
		t.Errorf("immediate probes = %v", s.Probes())
	}
}

func TestBuildAdvanced(t *testing.T) {
	m := testMap(t)
	g := ila.DefaultGeometry()
	src := "state a:\n if (valid == 1'b1) then trigger; endif\n"

	res := tsm.CompileString(src, m, g, tsm.Options{})
	spec, err := BuildAdvanced(res, g)
	if err != nil {
		t.Fatalf("BuildAdvanced: %v", err)
	}
	if spec.Mode != ila.TriggerAdvanced || spec.Validate(g, m.DataWidth()) != nil || spec.Eval(nil, []byte{0, 1}) {
		t.Errorf("advanced spec = %+v", spec)
	}

	tests := []struct {
		name string
		res  *tsm.Result
		g    func(ila.Geometry) ila.Geometry
		want ila.Err
	}{
		{"nil result", nil, nil, ila.ErrTsmNotCompiled},
		{"rejected", tsm.CompileString("state a:\n goto b;\n", m, g, tsm.Options{}), nil, ila.ErrTsmNotCompiled},
		{"compile only", tsm.CompileString(src, m, g, tsm.Options{CompileOnly: true}), nil, ila.ErrTsmNotCompiled},
		{"no tsm", res, func(g ila.Geometry) ila.Geometry { g.AdvancedTrigger = false; return g }, ila.ErrAdvancedUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gg := g
			if tc.g != nil {
				gg = tc.g(g)
			}
			_, err := BuildAdvanced(tc.res, gg)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateReceivedSpec(t *testing.T) {
	m := testMap(t)
	g := ila.DefaultGeometry()
	basic := func(edit func(c *Cond)) *Spec {
		c := And(clause(t, m, "valid", "1", ila.OpEQ), clause(t, m, "data", "8'h0F", ila.OpGE))
		edit(c)
		return &Spec{Mode: ila.TriggerBasic, Basic: c}
	}
	res := tsm.CompileString("state a:\n if (valid == 1'b1) then\n  set_flag $flag1;\n  trigger;\n endif\n", m, g, tsm.Options{})
	if !res.OK() {
		t.Fatalf("compile failed:\n%s", res.Report())
	}
	badFlag := *res.Program
	badFlag.States = []tsm.State{res.Program.States[0]}
	badFlag.States[0].Branches = []tsm.Branch{{Actions: []tsm.Action{{Kind: tsm.ActSetFlag, Index: 9}}}}

	tests := []struct {
		name string
		spec *Spec
		want ila.Err
	}{
		{"basic", basic(func(*Cond) {}), ila.OK},
		{"advanced", &Spec{Mode: ila.TriggerAdvanced, Program: res.Program}, ila.OK},
		{"row bit past data", basic(func(c *Cond) { c.Args[1].Cmp.Bits[0] = 64 }), ila.ErrInvalidParam},
		{"symbols short", basic(func(c *Cond) { c.Args[0].Cmp.Symbols = "" }), ila.ErrInvalidParam},
		{"match units", basic(func(c *Cond) {
			for i := 0; i < 4; i++ {
				c.Args = append(c.Args, clause(t, m, "ready", "0", ila.OpEQ))
			}
		}), ila.ErrTooManyMatchUnits},
		{"flag out of range", &Spec{Mode: ila.TriggerAdvanced, Program: &badFlag}, ila.ErrInvalidParam},
		{"unknown mode", &Spec{Mode: 9}, ila.ErrInvalidParam},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate(g, m.DataWidth())
			if tc.want == ila.OK {
				if err != nil {
					t.Errorf("Validate = %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate = %v, want %v", err, tc.want)
			}
		})
	}
}
