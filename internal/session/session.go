// Package session implements C1, the process-wide configuration that
// activates interception, and C12, the bounded arena the preload library
// copies that configuration into.
//
// A Session is created once per process — lazily, on the first shim
// invocation, guarded by a sync.Once rather than the dynamic linker's
// constructor ordering. A real `__attribute__((constructor))` cannot
// safely run Go code: the Go scheduler is not guaranteed initialized by
// the time the C runtime calls constructors in a `-buildmode=c-shared`
// library loaded via LD_PRELOAD, and two constructors race across
// compilation units with no defined order. Deferring to first-use keeps
// every Session field immutable from the moment any shim can observe it,
// which is what spec.md's "immutable after init" requirement actually
// needs.
package session

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Environment variable names carrying the three session keys, propagated
// into every child's environment so interception composes across exec
// boundaries.
const (
	EnvLibrary     = "INTERCEPT_LIBRARY"
	EnvDestination = "INTERCEPT_REPORT_DESTINATION"
	EnvVerbose     = "INTERCEPT_VERBOSE"
)

// PreloadVar is the platform's dynamic-linker preload environment
// variable. Darwin additionally requires ForcePreloadVar set to "1".
const (
	PreloadVarLinux  = "LD_PRELOAD"
	PreloadVarDarwin = "DYLD_INSERT_LIBRARIES"
	ForcePreloadVar  = "DYLD_FORCE_FLAT_NAMESPACE"
)

// Session is the immutable, process-wide record described by spec.md §3.
// Its string fields are copied into a bounded Arena at construction time
// so later setenv/unsetenv calls inside the intercepted process cannot
// invalidate them.
type Session struct {
	LibraryPath       string
	CollectorEndpoint string
	ReporterID        int64
	Verbose           bool

	initialized atomic.Bool
}

// reporterSeq hands out monotonically increasing reporter IDs within this
// process. A process normally has exactly one Session, so in practice
// this only ever returns 1, but spec.md describes the field as "monotonic
// within a session" rather than constant, so a counter is kept rather
// than a literal 1.
var reporterSeq int64

var (
	once    sync.Once
	current *Session
)

// Current returns this process's Session, constructing it from the
// environment on first call. Concurrent callers all observe the same
// instance; construction happens at most once per process.
func Current() *Session {
	once.Do(func() {
		current = fromEnvironment(os.Environ(), NewArena(2 * maxPathLen))
	})
	return current
}

// maxPathLen mirrors PATH_MAX on the platforms this project targets.
// Go has no portable PATH_MAX constant; 4096 matches Linux's value and
// comfortably covers Darwin's smaller one.
const maxPathLen = 4096

// fromEnvironment builds a Session from a raw environment slice ("K=V"
// entries), copying the three session values into arena so they survive
// any later mutation of the process's real environment. A missing key
// marks the session invalid: IsValid reports false and every shim must
// fall back to pass-through forwarding without reporting, per spec.md
// §4.1 and the ConfigMissing error kind.
func fromEnvironment(environ []string, arena *Arena) *Session {
	lookup := EnvironToMap(environ)

	library, okLib := lookup[EnvLibrary]
	destination, okDst := lookup[EnvDestination]
	_, okVerbose := lookup[EnvVerbose]

	s := &Session{Verbose: okVerbose}

	if !okLib || !okDst {
		// ConfigMissing: leave LibraryPath/CollectorEndpoint empty.
		// initialized stays false.
		return s
	}

	storedLibrary, ok := arena.Store(library)
	if !ok {
		return s // arena exhausted: ConfigMissing-equivalent, invalid session
	}
	storedDestination, ok := arena.Store(destination)
	if !ok {
		return s
	}

	s.LibraryPath = storedLibrary
	s.CollectorEndpoint = storedDestination
	s.ReporterID = atomic.AddInt64(&reporterSeq, 1)
	s.initialized.Store(true)
	return s
}

// ForTest builds a valid Session directly, bypassing environment
// recovery, for packages (intercept, wrapper) whose tests
// need a Session without reaching through the process-global Current().
// It lives outside a _test.go file because session.initialized is
// unexported and those packages' tests have no other way to produce one.
func ForTest(tb testing.TB, library, destination string, verbose bool) *Session {
	tb.Helper()
	s := &Session{
		LibraryPath:       library,
		CollectorEndpoint: destination,
		ReporterID:        1,
		Verbose:           verbose,
	}
	s.initialized.Store(true)
	return s
}

// IsValid reports whether the session was fully recovered from the
// environment. Shims consult this before doing any reporting work.
func (s *Session) IsValid() bool {
	return s != nil && s.initialized.Load()
}

// UpsertKeys returns a copy of env with INTERCEPT_LIBRARY and
// INTERCEPT_REPORT_DESTINATION set, overwriting any prior value.
// INTERCEPT_VERBOSE is set to "1" only when verbose is true; when it is
// false the key is not added, and a value already in env is kept as it
// is. This implements both C4 step 5's envp propagation and C7's
// UpdateEnvironment RPC (spec.md §4.7), which SPEC_FULL.md resolves to
// behave identically on an empty input map: the keys are inserted
// regardless of whether env already had other entries.
func UpsertKeys(env map[string]string, library, destination string, verbose bool) map[string]string {
	out := make(map[string]string, len(env)+3)
	for k, v := range env {
		out[k] = v
	}
	out[EnvLibrary] = library
	out[EnvDestination] = destination
	if verbose {
		out[EnvVerbose] = "1"
	}
	return out
}

// PrependPreloadEntry inserts entry as the first element of a
// colon-separated list, removing any existing occurrence of entry first.
// Both C4's per-call envp propagation and C10's child-environment
// construction use this to implement spec.md §5's "append-with-dedup —
// never overwrite" policy for the preload-list variable.
func PrependPreloadEntry(list, entry string) string {
	if entry == "" {
		return list
	}
	var kept []string
	if list != "" {
		for _, item := range strings.Split(list, ":") {
			if item != entry {
				kept = append(kept, item)
			}
		}
	}
	return strings.Join(append([]string{entry}, kept...), ":")
}

// EnvironToMap splits a raw []string environment (as os.Environ returns it)
// into a map, keyed on the first '=' in each entry. Shared by fromEnvironment
// and by callers (internal/intercept, internal/wrapper) that need to build a
// synthetic envp map where no explicit envp array was passed to a shim.
func EnvironToMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
