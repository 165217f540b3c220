package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chipscope/internal/ila"
	"chipscope/internal/run"
)

func TestLoad(t *testing.T) {
	text := `; bench setup
[servers]
hw_server = "lab-pc:3121"
serial = /dev/ttyUSB1
baud = 921600

[session]
poll_interval = 20ms
max_retries = 5
default_wait = 2m
`
	c, err := Load(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.HwServerURL = "lab-pc:3121"
	want.SerialDev = "/dev/ttyUSB1"
	want.SerialBaud = 921600
	want.PollInterval = 20 * time.Millisecond
	want.MaxRetries = 5
	want.DefaultWait = 2 * time.Minute
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, text string
	}{
		{"unknown key", "[session]\npoll = 1s\n"},
		{"unknown section", "[server]\nhw_server = x\n"},
		{"bad duration", "[session]\npoll_interval = soon\n"},
		{"negative retries", "[session]\nmax_retries = -1\n"},
		{"no section", "hw_server = x\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tc.text)); !errors.Is(err, ila.ErrInvalidParam) {
				t.Errorf("Load = %v, want ErrInvalidParam", err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{CsServerEnv: "board:3042", HwServerEnv: ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default().FromEnv(lookup)
	if c.CsServerURL != "board:3042" || c.HwServerURL != Default().HwServerURL {
		t.Errorf("FromEnv = %+v", c)
	}
}

func TestRunConfig(t *testing.T) {
	c := Default()
	c.MaxRetries = 7
	got := c.RunConfig(nil)
	want := run.DefaultConfig()
	want.MaxRetries = 7
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run config mismatch (-want +got):\n%s", diff)
	}
}
