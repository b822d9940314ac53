// Command bear is the Supervisor CLI (C10): it launches a build command
// under interception, waits for it to finish, and writes the reassembled
// compile-command report spec.md §1 hands off to an external recognizer.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rizsotto/Bear-sub001/internal/recognizer"
	"github.com/rizsotto/Bear-sub001/internal/supervisor"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cfg supervisor.Config
	var verbose bool
	code := 0

	root := &cobra.Command{
		Use:     "bear -- <command> [args...]",
		Short:   "Run a build under compile-command interception",
		Version: version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			cfg.Command = argsAfterDash(cmd, cmdArgs)
			cfg.Verbose = verbose

			logger := newLogger(verbose)
			s := supervisor.New(cfg, recognizer.Null{}, logger)

			var err error
			code, err = s.Run()
			if err != nil {
				logger.Error().Err(err).Msg("bear: build supervision failed")
			}
			return nil
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.StringVar(&cfg.Output, "output", "", "final compilation-database output path")
	flags.StringVar(&cfg.Library, "library", "", "override the preload library location")
	flags.StringVar(&cfg.WrapperPath, "wrapper", "", "wrapper-mode shim binary path")
	flags.StringVar(&cfg.WrapperDir, "wrapper-dir", "", "wrapper-mode shim install directory")
	flags.BoolVar(&cfg.ForcePreload, "force-preload", false, "disable wrapper mode")
	flags.BoolVar(&cfg.ForceWrapper, "force-wrapper", false, "disable preload mode")
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bear:", err)
		return 1
	}
	return code
}

// argsAfterDash recovers the build command given after "--". cobra hands
// RunE everything after the flags it recognized, including a literal "--"
// marker's following arguments; ArgsLenAtDash tells us where flags ended
// so a build command that happens to look like a flag (e.g. "--version")
// is never misparsed as one of bear's own.
func argsAfterDash(cmd *cobra.Command, parsedArgs []string) []string {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return parsedArgs[at:]
	}
	return parsedArgs
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
