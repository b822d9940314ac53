// Command bear-libexec is C13's wrapper-mode shim: installed under a
// compiler's short name (cc, c++, gcc, ...) on a PATH directory the
// supervisor prepends in --wrapper-dir mode. Whatever name it was invoked
// as becomes the program name it reports and asks the collector to
// resolve.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rizsotto/Bear-sub001/internal/session"
	"github.com/rizsotto/Bear-sub001/internal/wrapper"
)

var version = "dev"

func main() {
	name := filepath.Base(os.Args[0])

	root := &cobra.Command{
		Use:                name,
		Short:              "bear-libexec wrapper shim for " + name,
		Version:            version,
		DisableFlagParsing: true, // every flag here belongs to the real compiler, not to us
		RunE: func(cmd *cobra.Command, args []string) error {
			return wrapper.Run(session.Current(), name, os.Args)
		},
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
