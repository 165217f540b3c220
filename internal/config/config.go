// Package config holds the host side settings: where the debug servers are
// and how sessions poll them.
package config

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/ini"
	"chipscope/internal/run"
)

const (
	ServersSectionName = "servers"
	HwServerKey        = "hw_server"
	CsServerKey        = "cs_server"
	SerialKey          = "serial"
	BaudKey            = "baud"

	SessionSectionName = "session"
	PollIntervalKey    = "poll_interval"
	MaxRetriesKey      = "max_retries"
	RetryBackoffKey    = "retry_backoff"
	MaxBackoffKey      = "max_backoff"
	DefaultWaitKey     = "default_wait"

	HwServerEnv = "HW_SERVER_URL"
	CsServerEnv = "CS_SERVER_URL"
)

// Config is the complete host configuration. Zero durations fall back to the
// run package defaults.
type Config struct {
	HwServerURL string
	CsServerURL string
	SerialDev   string
	SerialBaud  int

	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	DefaultWait  time.Duration
}

// Default returns the built in configuration.
func Default() Config {
	rc := run.DefaultConfig()
	return Config{
		HwServerURL:  "localhost:3121",
		CsServerURL:  "localhost:3042",
		SerialBaud:   115200,
		PollInterval: rc.PollInterval,
		MaxRetries:   rc.MaxRetries,
		RetryBackoff: rc.RetryBackoff,
		MaxBackoff:   rc.MaxBackoff,
		DefaultWait:  rc.DefaultWait,
	}
}

// Load reads INI text over the defaults. Unknown keys are rejected so that
// typos do not silently fall back to a default.
func Load(r io.Reader) (Config, error) {
	c := Default()
	f, err := ini.Read(r, false)
	if err != nil {
		return c, common.Errorf(ila.ErrInvalidParam, "config: %v", err)
	}
	for _, e := range f.Entries {
		if err := c.set(e); err != nil {
			return c, common.Errorf(ila.ErrInvalidParam, "config: [%s] %s: %v", e.Section, e.Key, err).WithPos(e.Line, 1)
		}
	}
	return c, nil
}

func (c *Config) set(e ini.Entry) error {
	v := ini.TrimQuotes(e.Value)
	switch e.Section + "." + e.Key {
	case ServersSectionName + "." + HwServerKey:
		c.HwServerURL = v
	case ServersSectionName + "." + CsServerKey:
		c.CsServerURL = v
	case ServersSectionName + "." + SerialKey:
		c.SerialDev = v
	case ServersSectionName + "." + BaudKey:
		return setInt(&c.SerialBaud, v)
	case SessionSectionName + "." + PollIntervalKey:
		return setDuration(&c.PollInterval, v)
	case SessionSectionName + "." + MaxRetriesKey:
		return setInt(&c.MaxRetries, v)
	case SessionSectionName + "." + RetryBackoffKey:
		return setDuration(&c.RetryBackoff, v)
	case SessionSectionName + "." + MaxBackoffKey:
		return setDuration(&c.MaxBackoff, v)
	case SessionSectionName + "." + DefaultWaitKey:
		return setDuration(&c.DefaultWait, v)
	default:
		return fmt.Errorf("unknown setting")
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%q is not a non-negative integer", v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("%q is not a duration", v)
	}
	*dst = d
	return nil
}

// FromEnv overrides the server URLs from the environment. lookup has the
// signature of os.LookupEnv.
func (c Config) FromEnv(lookup func(string) (string, bool)) Config {
	if v, ok := lookup(HwServerEnv); ok && v != "" {
		c.HwServerURL = v
	}
	if v, ok := lookup(CsServerEnv); ok && v != "" {
		c.CsServerURL = v
	}
	return c
}

// RunConfig derives the session settings.
func (c Config) RunConfig(log common.Logger) run.Config {
	return run.Config{
		PollInterval: c.PollInterval,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		MaxBackoff:   c.MaxBackoff,
		DefaultWait:  c.DefaultWait,
		Log:          log,
	}
}
