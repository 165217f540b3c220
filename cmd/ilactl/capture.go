package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"chipscope/internal/lister"
)

var (
	capCfg    lister.Config
	capAddr   string
	capSerial string
	capBaud   int
	capOut    string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Arm a core, wait for the capture and write the waveform",
	Long: `Arm a core and write the uploaded waveform as CSV or VCD.

The trigger is a state machine program (--tsm), one or more probe matches
(--match), or nothing, which triggers immediately.

Examples:
  ilactl capture --desc core.ini --sim --match "counter==8'h10" --window-size 64 --trigger-pos 8
  ilactl capture --desc core.ini --addr board:3042 --tsm trig.tsm --out vcd -o run.vcd`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&capCfg.DescFile, "desc", "", "core description file")
	f.BoolVar(&capCfg.Sim, "sim", false, "capture from an in-process simulated core")
	f.StringVar(&capAddr, "addr", "", "debug core server address (overrides settings)")
	f.StringVar(&capSerial, "serial", "", "serial device of a bridged debug server (overrides settings)")
	f.IntVar(&capBaud, "baud", 0, "serial baud rate (overrides settings)")
	f.StringVar(&capCfg.TsmFile, "tsm", "", "trigger state machine program")
	f.StringArrayVar(&capCfg.Matches, "match", nil, "basic trigger clause probe<op>value, repeatable")
	f.BoolVar(&capCfg.AnyMatch, "any", false, "trigger when any --match clause holds")
	f.IntVar(&capCfg.Windows, "windows", 1, "number of capture windows")
	f.IntVar(&capCfg.WindowSize, "window-size", 1024, "samples per window, a power of two")
	f.IntVar(&capCfg.TriggerPos, "trigger-pos", 0, "trigger sample offset inside each window")
	f.DurationVar(&capCfg.Wait, "wait", time.Minute, "give up waiting for the capture after this long")
	f.BoolVar(&capCfg.StopOnTimeout, "stop-on-timeout", false, "stop an unfinished run after --wait and write the partial capture")
	f.StringSliceVar(&capCfg.Probes, "probes", nil, "probes to list, default all")
	f.BoolVar(&capCfg.Activity, "activity", false, "add per-probe activity columns")
	f.StringVar(&capCfg.Format, "out", "csv", "output format, csv or vcd")
	f.StringVar(&capCfg.Timescale, "timescale", "1ns", "VCD time step")
	f.StringVarP(&capOut, "output", "o", "", "output file, default stdout")
	captureCmd.MarkFlagRequired("desc")
}

func runCapture(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if capAddr != "" {
		settings.CsServerURL = capAddr
		settings.SerialDev = ""
	}
	if capSerial != "" {
		settings.SerialDev = capSerial
	}
	if capBaud > 0 {
		settings.SerialBaud = capBaud
	}

	cfg := capCfg
	cfg.Settings = settings
	cfg.Log = log
	cfg.OutputWriter = cmd.OutOrStdout()
	if capOut != "" {
		f, err := os.Create(capOut)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg.OutputWriter = f
	}
	return lister.Capture(cmd.Context(), cfg)
}
