// Package lister implements the ilactl commands: describing a core, checking
// a trigger state machine program, capturing and listing a waveform, and
// serving a simulated core.
package lister

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"chipscope/internal/common"
	"chipscope/internal/config"
	"chipscope/internal/coredesc"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/remote"
	"chipscope/internal/run"
	"chipscope/internal/simcore"
	"chipscope/internal/trigger"
	"chipscope/internal/tsm"
	"chipscope/internal/waveform"
)

// Config mirrors the capture command line.
type Config struct {
	DescFile string
	Settings config.Config
	Sim      bool // capture from an in-process simulated core

	TsmFile  string
	Matches  []string // "probe<op>value", see ParseMatch
	AnyMatch bool     // OR the matches instead of AND

	Windows    int
	WindowSize int
	TriggerPos int
	Wait       time.Duration
	// StopOnTimeout stops a run that did not finish within Wait and writes
	// the partial capture. Otherwise the run is left armed on the core.
	StopOnTimeout bool

	Probes       []string // empty lists every probe
	Activity     bool
	Format       string // csv or vcd
	Timescale    string
	OutputWriter io.Writer
	Log          common.Logger
}

// LoadDescription reads a core description file and builds its probe map.
func LoadDescription(path string) (coredesc.Description, *probe.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return coredesc.Description{}, nil, err
	}
	defer f.Close()
	d, err := coredesc.Parse(f)
	if err != nil {
		return d, nil, fmt.Errorf("%s: %w", path, err)
	}
	m, err := d.Map()
	if err != nil {
		return d, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, m, nil
}

// Describe prints a core description as INI text or as key/value pairs.
func Describe(path string, pairs bool, w io.Writer) error {
	d, _, err := LoadDescription(path)
	if err != nil {
		return err
	}
	if !pairs {
		return d.WriteText(w)
	}
	for _, p := range d.Pairs() {
		if _, err := fmt.Fprintf(w, "%s = %s\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Check compiles a program without producing it and prints every
// diagnostic. ok is false when the program has errors.
func Check(tsmPath, descPath string, w io.Writer) (ok bool, err error) {
	d, m, err := LoadDescription(descPath)
	if err != nil {
		return false, err
	}
	res, err := tsm.CompileFile(tsmPath, m, d.Geometry, tsm.Options{CompileOnly: true})
	if err != nil {
		return false, err
	}
	if res.OK() {
		fmt.Fprintf(w, "%s: no errors\n", tsmPath)
		return true, nil
	}
	fmt.Fprint(w, res.Report())
	return false, nil
}

// ParseMatch splits "probe<op>value". A single '=' is taken as "==".
func ParseMatch(s string) (name, value string, op ila.Operator, err error) {
	i := strings.IndexAny(s, "=!<>")
	if i <= 0 {
		return "", "", 0, common.Errorf(ila.ErrInvalidParam, "match %q: want probe<op>value", s)
	}
	name = strings.TrimSpace(s[:i])
	rest := s[i:]
	j := strings.IndexFunc(rest, func(r rune) bool { return !strings.ContainsRune("=!<>", r) })
	if j < 0 {
		return "", "", 0, common.Errorf(ila.ErrInvalidParam, "match %q: missing value", s)
	}
	opText := rest[:j]
	if opText == "=" {
		opText = "=="
	}
	op, ok := ila.ParseOperator(opText)
	if !ok {
		return "", "", 0, common.Errorf(ila.ErrInvalidParam, "match %q: unknown operator %q", s, rest[:j])
	}
	return name, strings.TrimSpace(rest[j:]), op, nil
}

// BuildTrigger turns the trigger options into a spec: a program file selects
// the advanced mode, matches the basic mode, and neither triggers at once.
func BuildTrigger(m *probe.Map, g ila.Geometry, cfg Config) (*trigger.Spec, error) {
	if cfg.TsmFile != "" {
		if len(cfg.Matches) > 0 {
			return nil, common.Errorf(ila.ErrInvalidParam, "a program file and match clauses are exclusive")
		}
		res, err := tsm.CompileFile(cfg.TsmFile, m, g, tsm.Options{})
		if err != nil {
			return nil, err
		}
		return trigger.BuildAdvanced(res, g)
	}
	if len(cfg.Matches) == 0 {
		return trigger.BuildImmediate(), nil
	}
	var clauses []*trigger.Cond
	for _, s := range cfg.Matches {
		name, value, op, err := ParseMatch(s)
		if err != nil {
			return nil, err
		}
		c, err := trigger.Clause(m, name, value, op)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	cond := trigger.And(clauses...)
	if cfg.AnyMatch {
		cond = trigger.Or(clauses...)
	}
	return trigger.BuildBasic(cond, g)
}

// SimSource generates a free running counter across the whole sample row.
func SimSource(m *probe.Map) simcore.Source {
	n := m.RowBytes()
	return simcore.FuncSource(func(i int) []byte {
		row := make([]byte, n)
		for b := range row {
			if b < 8 {
				row[b] = byte(uint64(i) >> (8 * b))
			}
		}
		return row
	})
}

func openEngine(ctx context.Context, m *probe.Map, g ila.Geometry, cfg Config, log common.Logger) (engine.Engine, func() error, error) {
	switch {
	case cfg.Sim:
		return simcore.New(m, g, SimSource(m), simcore.Options{Log: log}), func() error { return nil }, nil
	case cfg.Settings.SerialDev != "":
		c, err := remote.DialSerial(cfg.Settings.SerialDev, cfg.Settings.SerialBaud, log)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		c, err := remote.Dial(ctx, cfg.Settings.CsServerURL, log)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
}

// Capture arms one run, waits for it and writes the uploaded waveform.
func Capture(ctx context.Context, cfg Config) error {
	w := cfg.OutputWriter
	if w == nil {
		w = os.Stdout
	}
	log := common.OrNoOp(cfg.Log)

	d, m, err := LoadDescription(cfg.DescFile)
	if err != nil {
		return err
	}
	spec, err := BuildTrigger(m, d.Geometry, cfg)
	if err != nil {
		return err
	}
	e, closeEngine, err := openEngine(ctx, m, d.Geometry, cfg, log)
	if err != nil {
		return err
	}
	defer closeEngine()

	s := run.NewSession(e, m, d.Geometry, cfg.Settings.RunConfig(log))
	if err := s.Run(ctx, spec, cfg.Windows, cfg.WindowSize, cfg.TriggerPos); err != nil {
		return err
	}
	f := s.MonitorStatus(ctx, cfg.Wait, func(st run.RunStatus) {
		log.Logf(common.SeverityDebug, "status: %v", st)
	}, nil)
	st := f.Wait()
	if st.Basic().State != ila.StateDone {
		if st.Basic().Err != nil {
			return st.Basic().Err
		}
		if !cfg.StopOnTimeout {
			return common.Errorf(ila.ErrTimeout, "capture did not finish, run left %s: %v", st.Basic().State, st)
		}
		log.Logf(common.SeverityWarning, "capture did not finish, stopping: %v", st)
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}

	wave, err := s.Upload(ctx)
	if err != nil {
		return err
	}
	data, err := wave.GetData(cfg.Probes, waveform.Options{Trigger: true, SampleInfo: true, Activity: cfg.Activity})
	if err != nil {
		return err
	}
	switch cfg.Format {
	case "", "csv":
		return waveform.WriteCSV(w, data)
	case "vcd":
		return waveform.WriteVCD(w, data, cfg.Timescale)
	}
	return common.Errorf(ila.ErrInvalidParam, "unknown output format %q", cfg.Format)
}

// Serve exposes a simulated core for descPath on addr until ctx is done.
func Serve(ctx context.Context, addr, descPath string, log common.Logger) error {
	d, m, err := LoadDescription(descPath)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log = common.OrNoOp(log)
	log.Logf(common.SeverityInfo, "serving simulated core %s on %s", d.Name, ln.Addr())
	core := simcore.New(m, d.Geometry, SimSource(m), simcore.Options{Log: log})
	return remote.ServeListener(ctx, ln, core, log)
}
