package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"chipscope/internal/common"
	"chipscope/internal/config"
	"chipscope/internal/lister"
)

var (
	configFile string
	logLevel   string
	useGlog    bool
)

var rootCmd = &cobra.Command{
	Use:           "ilactl",
	Short:         "Drive integrated logic analyzer cores",
	Long:          `Describe ILA cores, check trigger state machine programs, and capture waveforms from a debug server or a simulated core.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var errCheckFailed = errors.New("program has errors")

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "settings file with [servers] and [session] sections")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "minimum severity logged (debug, info, warning, error)")
	rootCmd.PersistentFlags().BoolVar(&useGlog, "glog", false, "log through glog instead of stderr")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(describeCmd, checkCmd, serveCmd, captureCmd)
}

func newLogger() (common.Logger, error) {
	sev, ok := common.ParseSeverity(logLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}
	if useGlog {
		return common.NewGlogLogger(sev), nil
	}
	return common.NewStdLogger(sev), nil
}

// loadSettings applies the settings file, then the environment.
func loadSettings() (config.Config, error) {
	c := config.Default()
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return c, err
		}
		defer f.Close()
		if c, err = config.Load(f); err != nil {
			return c, fmt.Errorf("%s: %w", configFile, err)
		}
	}
	return c.FromEnv(os.LookupEnv), nil
}

var describePairs bool

var describeCmd = &cobra.Command{
	Use:   "describe <core-file>",
	Short: "Print a core description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lister.Describe(args[0], describePairs, cmd.OutOrStdout())
	},
}

var checkDesc string

var checkCmd = &cobra.Command{
	Use:   "check <program>",
	Short: "Compile a trigger state machine program and report every error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := lister.Check(args[0], checkDesc, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if !ok {
			return errCheckFailed
		}
		return nil
	},
}

var serveAddr, serveDesc string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated core over TCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		return lister.Serve(cmd.Context(), serveAddr, serveDesc, log)
	},
}

func init() {
	describeCmd.Flags().BoolVar(&describePairs, "pairs", false, "print ordered key/value pairs instead of INI text")

	checkCmd.Flags().StringVar(&checkDesc, "desc", "", "core description file")
	checkCmd.MarkFlagRequired("desc")

	serveCmd.Flags().StringVar(&serveAddr, "listen", "localhost:3042", "address to listen on")
	serveCmd.Flags().StringVar(&serveDesc, "desc", "", "core description file")
	serveCmd.MarkFlagRequired("desc")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintln(os.Stderr, "ilactl:", err)
		}
		os.Exit(1)
	}
}
