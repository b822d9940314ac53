// Package wrapper implements C13, the optional activation mode for
// toolchains that cannot be preloaded (static binaries, sanitized
// executables): a small shim binary installed under a compiler's short
// name on a PATH directory the supervisor prepends. When the build
// invokes, say, "cc", this code runs in its place.
package wrapper

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/event"
	"github.com/rizsotto/Bear-sub001/internal/intercept"
	"github.com/rizsotto/Bear-sub001/internal/reporter"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

// realExecFunc is syscall.Exec. execFunc is indirected through it so tests
// can substitute a fake, observe the resolved argv/env without actually
// replacing the test binary's process image, and restore the real one
// afterward.
var realExecFunc = syscall.Exec
var execFunc = realExecFunc

// Run implements C13's outline: report a Started event carrying this
// process's own argv and cwd, ask the collector to resolve name (the
// short compiler name the shim was invoked as) to a real path, then exec
// that real compiler with argv[0] adjusted and the rest of argv
// untouched. It never returns on success — syscall.Exec replaces the
// process image.
//
// sess is passed in rather than recovered via session.Current() so tests
// can exercise Run against a fake collector without racing that
// process-global singleton's one-time init.
func Run(sess *session.Session, name string, argv []string) error {
	if !sess.IsValid() {
		return bearerr.ErrConfigMissing
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	client := reporter.New(sess.CollectorEndpoint)
	e := event.NewStarted(sess.ReporterID, os.Getpid(), os.Getppid(), name, argv, cwd, session.EnvironToMap(os.Environ()))
	_ = client.Report(e)
	_ = client.Close()

	resolved, err := client.ResolveProgram(name)
	if err != nil {
		return fmt.Errorf("wrapper: resolving %q: %w", name, err)
	}

	intercept.ApplyToProcessEnvironment(sess)

	execArgv := append([]string{resolved}, argv[1:]...)
	return execFunc(resolved, execArgv, os.Environ())
}
