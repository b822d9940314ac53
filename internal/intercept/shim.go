// Package intercept implements C4, the per-entry-point interception
// logic shared by every exported shim: normalize arguments, report a
// Started event, propagate the session into the child's environment,
// and hand back what the real libc call should actually receive. The
// cgo-exported entry points that the dynamic linker actually interposes
// on live in cmd/bear-preload; this file holds everything that does not
// need to touch C types, so it can be unit-tested without cgo.
package intercept

import (
	"os"
	"sync"

	"github.com/rizsotto/Bear-sub001/internal/event"
	"github.com/rizsotto/Bear-sub001/internal/reporter"
	"github.com/rizsotto/Bear-sub001/internal/resolver"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

// Lookup selects which of C3's three entry points resolves Call.File.
type Lookup int

const (
	// CurrentDirectory is used by execv/execve/execle/posix_spawn/
	// exect, which never search PATH.
	CurrentDirectory Lookup = iota
	// Path is used by execvp/execvpe/execlp/posix_spawnp, which search
	// envp["PATH"].
	Path
	// SearchPath is used by execvP and BSD's execvP-style wrapper
	// family, which take an explicit search list instead of envp.
	SearchPath
)

// Call is everything one intercepted entry point invocation needs to
// run through C4's outline. The "Started as sh -c cmd" shape used for
// system/popen does not go through Call; HandleShell builds it directly.
type Call struct {
	Lookup     Lookup
	File       string
	SearchPath string // only consulted when Lookup == SearchPath
	Argv       []string
	Envp       map[string]string
	WorkingDir string
}

// Result is what a shim needs to complete the forward step: the
// resolved executable (the value reported in the Started event; the
// forward call itself receives the caller's original path), and the
// envp propagated per spec.md §4.4 step 5.
type Result struct {
	Executable string
	Envp       map[string]string
}

// Handle runs steps 2 through 5 of spec.md §4.4's per-shim outline for
// the entry points that take an explicit envp array (execve, execvpe,
// exect, execle, posix_spawn, posix_spawnp). Step 1
// (varargs normalization) and step 6 (forward via C2) are the cgo
// layer's job; this function is pure Go so it can be tested without a
// dynamic linker.
//
// A non-nil error means resolution failed (step 3): the caller must
// return the libc-equivalent failure without ever reaching step 6.
func Handle(sess *session.Session, call Call) (Result, error) {
	if !sess.IsValid() {
		// Filter (step 2): pass through unchanged, unresolved, unreported.
		return Result{Executable: call.File, Envp: call.Envp}, nil
	}

	resolved, err := resolve(call)
	if err != nil {
		return Result{}, err
	}

	report(sess, resolved, call.Argv, call.WorkingDir, call.Envp)

	return Result{
		Executable: resolved,
		Envp:       propagate(sess, call.Envp),
	}, nil
}

// HandleNoEnvp runs the same outline as Handle for the entry points that
// have no envp parameter of their own (execv, execvp, execl, execlp,
// execvP): they inherit the calling process's environment, so step 5
// mutates it in place via ApplyToProcessEnvironment rather than building
// a new array to hand to the forward call.
func HandleNoEnvp(sess *session.Session, lookup Lookup, file string, argv []string, workingDir, searchPath string) (string, error) {
	if !sess.IsValid() {
		return file, nil
	}

	env := processEnviron()
	resolved, err := resolve(Call{Lookup: lookup, File: file, SearchPath: searchPath, Envp: env, WorkingDir: workingDir})
	if err != nil {
		return "", err
	}

	report(sess, resolved, argv, workingDir, env)
	ApplyToProcessEnvironment(sess)
	return resolved, nil
}

// HandleShell implements the treatment spec.md §4.4 and SPEC_FULL.md §C
// give system(cmd) and popen(cmd, mode): reported as
// execve("/bin/sh", ["sh", "-c", cmd], envp) regardless of the fact that
// the real call forwards to libc's system/popen, which does its own
// shell invocation internally. Neither system nor popen takes an envp
// parameter, so propagation mutates the live process environment exactly
// like HandleNoEnvp. There is no resolution step — /bin/sh is a fixed,
// assumed-present path, matching rizsotto/Bear's own treatment of this
// case.
func HandleShell(sess *session.Session, cmd, workingDir string) {
	if !sess.IsValid() {
		return
	}
	report(sess, "/bin/sh", []string{"sh", "-c", cmd}, workingDir, processEnviron())
	ApplyToProcessEnvironment(sess)
}

// ApplyToProcessEnvironment upserts the session keys and the platform
// preload-list variable directly into this process's live environment,
// for the interception paths that have no envp array of their own to
// modify. INTERCEPT_VERBOSE is set only when the session is verbose; an
// existing value is otherwise left as it is.
func ApplyToProcessEnvironment(sess *session.Session) {
	preloadVar, forceVar := PreloadVarForRuntime()
	_ = os.Setenv(preloadVar, session.PrependPreloadEntry(os.Getenv(preloadVar), sess.LibraryPath))
	if forceVar != "" {
		_ = os.Setenv(forceVar, "1")
	}
	_ = os.Setenv(session.EnvLibrary, sess.LibraryPath)
	_ = os.Setenv(session.EnvDestination, sess.CollectorEndpoint)
	if sess.Verbose {
		_ = os.Setenv(session.EnvVerbose, "1")
	}
}

func processEnviron() map[string]string {
	return session.EnvironToMap(os.Environ())
}

func resolve(call Call) (string, error) {
	switch call.Lookup {
	case CurrentDirectory:
		return resolver.FromCurrentDirectory(call.File, call.WorkingDir), nil
	case SearchPath:
		return resolver.FromSearchPath(call.File, call.WorkingDir, call.SearchPath)
	default:
		return resolver.FromPath(call.File, call.WorkingDir, call.Envp)
	}
}

// report builds and ships a Started event (C5 + C6). Reporting failure
// is non-fatal per spec.md §4.4 step 4: it is written to stderr when the
// session is verbose and otherwise swallowed; the shim carries on either
// way.
func report(sess *session.Session, executable string, argv []string, workingDir string, envp map[string]string) {
	e := event.NewStarted(sess.ReporterID, os.Getpid(), os.Getppid(), executable, argv, workingDir, envp)
	if err := client(sess).Report(e); err != nil && sess.Verbose {
		_, _ = os.Stderr.WriteString("bear: report dropped\n")
	}
}

// propagate implements step 5: upsert the session keys (INTERCEPT_VERBOSE
// only when verbose, see session.UpsertKeys) and dedup-prepend the
// platform preload-list variable.
func propagate(sess *session.Session, envp map[string]string) map[string]string {
	out := session.UpsertKeys(envp, sess.LibraryPath, sess.CollectorEndpoint, sess.Verbose)
	preloadVar, forceVar := PreloadVarForRuntime()
	out[preloadVar] = session.PrependPreloadEntry(out[preloadVar], sess.LibraryPath)
	if forceVar != "" {
		out[forceVar] = "1"
	}
	return out
}

var (
	clientOnce   sync.Once
	reportClient *reporter.Client
)

// client lazily constructs the one reporter.Client this process ever
// needs, the same first-use-guarded pattern session.Current() uses and
// for the same reason: no heap allocation is safe until a shim actually
// runs.
func client(sess *session.Session) *reporter.Client {
	clientOnce.Do(func() {
		reportClient = reporter.New(sess.CollectorEndpoint)
	})
	return reportClient
}
