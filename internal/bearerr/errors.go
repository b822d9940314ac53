// Package bearerr defines the error taxonomy shared across the
// interception pipeline. Interception-path kinds never surface to the
// user; only CollectorFatal, ChildSpawnFailed and DrainTimeout reach the
// supervisor's own exit path.
package bearerr

import "errors"

var (
	// ErrConfigMissing is returned when the Session could not be recovered
	// from the environment at load time. Shims fall back to pass-through.
	ErrConfigMissing = errors.New("bearerr: session configuration missing")

	// ErrResolutionFailed is returned by the path resolver when a file or
	// search-path lookup could not produce an executable.
	ErrResolutionFailed = errors.New("bearerr: path resolution failed")

	// ErrSymbolMissing is returned when the next libc definition of an
	// intercepted entry point could not be located.
	ErrSymbolMissing = errors.New("bearerr: symbol not available")

	// ErrReportDropped is returned (and only ever logged, never
	// propagated to a caller of a shim) when the reporter client could
	// not connect, or could not deliver an event after one reconnect
	// attempt.
	ErrReportDropped = errors.New("bearerr: report dropped")

	// ErrCollectorFatal is returned when the collector could not bind its
	// endpoint or open its database before the root child is spawned.
	ErrCollectorFatal = errors.New("bearerr: collector failed to start")

	// ErrChildSpawnFailed is returned when the supervisor could not
	// fork/exec the root build command.
	ErrChildSpawnFailed = errors.New("bearerr: failed to spawn child process")

	// ErrDrainTimeout is returned when the collector could not drain its
	// in-flight connections within the shutdown deadline.
	ErrDrainTimeout = errors.New("bearerr: collector drain timed out")

	// ErrInvalidProgram is returned by the collector's ResolveProgram RPC
	// when the requested short name has no configured real compiler path.
	ErrInvalidProgram = errors.New("bearerr: unknown program name")
)

// Resolution wraps ErrResolutionFailed with the file that failed to
// resolve and the POSIX errno-equivalent kind, so callers can recover
// structured detail with errors.As while errors.Is(err, ErrResolutionFailed)
// keeps working.
type Resolution struct {
	File string
	Kind string // "ENOENT", "EACCES", "ENAMETOOLONG"
}

func (e *Resolution) Error() string {
	return "bearerr: " + e.Kind + " resolving " + e.File
}

func (e *Resolution) Unwrap() error { return ErrResolutionFailed }

// Symbol wraps ErrSymbolMissing with the symbol name that could not be
// resolved through the dynamic linker's next definition.
type Symbol struct {
	Name string
}

func (e *Symbol) Error() string { return "bearerr: symbol missing: " + e.Name }

func (e *Symbol) Unwrap() error { return ErrSymbolMissing }
