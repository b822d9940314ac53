// Package supervisor implements C10, the parent-side orchestrator, and
// C11, the signal forwarder it installs around the root child.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/collector"
	"github.com/rizsotto/Bear-sub001/internal/eventdb"
	"github.com/rizsotto/Bear-sub001/internal/reassemble"
	"github.com/rizsotto/Bear-sub001/internal/recognizer"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

// Supervisor runs one build under interception and produces a Report.
type Supervisor struct {
	cfg        Config
	logger     zerolog.Logger
	recognizer recognizer.Recognizer
}

// New constructs a Supervisor. A nil recognizer falls back to
// recognizer.Null, since the real recognizer is an external collaborator
// (spec.md §1) this repository does not implement.
func New(cfg Config, rec recognizer.Recognizer, logger zerolog.Logger) *Supervisor {
	if rec == nil {
		rec = recognizer.Null{}
	}
	return &Supervisor{cfg: cfg, logger: logger, recognizer: rec}
}

// Run implements spec.md §4.10's numbered sequence. It returns the exit
// code the calling binary should use; a non-nil error means a fatal
// startup failure (CollectorFatal or ChildSpawnFailed) that the caller
// should also log or print.
func (s *Supervisor) Run() (int, error) {
	buildID := uuid.NewString()

	libraryPath, err := s.resolveLibrary()
	if err != nil {
		return ExitCollectorFatal, fmt.Errorf("%w: resolving preload library: %v", bearerr.ErrCollectorFatal, err)
	}

	endpoint, cleanup, err := allocateEndpoint()
	if err != nil {
		return ExitCollectorFatal, fmt.Errorf("%w: allocating collector endpoint: %v", bearerr.ErrCollectorFatal, err)
	}
	defer cleanup()

	db := eventdb.NewInMemory()
	col := collector.New(collector.Config{
		Endpoint: endpoint,
		DB:       db,
		Programs: s.wrapperPrograms(),
		Library:  libraryPath,
		Verbose:  s.cfg.Verbose,
		Logger:   s.logger,
	})
	if err := col.Start(); err != nil {
		return ExitCollectorFatal, fmt.Errorf("%w: %v", bearerr.ErrCollectorFatal, err)
	}

	if len(s.cfg.Command) == 0 {
		_ = col.Stop()
		return 0, nil
	}

	env := s.buildChildEnvironment(os.Environ(), libraryPath, col.Endpoint())

	cmd := exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = col.Stop()
		s.logger.Error().Err(err).Str("program", s.cfg.Command[0]).Msg("supervisor: failed to spawn root child")
		return ExitChildSpawnFailed, fmt.Errorf("%w: %v", bearerr.ErrChildSpawnFailed, err)
	}

	forwarder := NewForwarder(cmd.Process.Pid)
	waitErr := cmd.Wait()
	forwarder.Close()

	exitCode := exitCodeFromWait(waitErr)

	if err := col.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("supervisor: collector did not drain in time")
	}

	s.finishReport(buildID, db)

	return exitCode, nil
}

// finishReport implements step 8: reassemble, recognize, write. Failures
// here are logged but never alter the exit code already decided by the
// child's own termination, per spec.md §4.10's failure semantics.
func (s *Supervisor) finishReport(buildID string, db *eventdb.DB) {
	events := db.IterateByTimestamp()
	executions := reassemble.Reassemble(events, s.logger)

	entries := make([]recognizer.Entry, 0, len(executions))
	for _, execution := range executions {
		if entry, ok := s.recognizer.Recognize(execution); ok {
			entries = append(entries, entry)
		}
	}

	if s.cfg.Output == "" {
		return
	}

	report := Report{
		BuildID:     buildID,
		SessionType: s.cfg.sessionType(),
		Host:        newHostInfo(),
		Executions:  entries,
	}
	if err := writeReport(s.cfg.Output, report); err != nil {
		s.logger.Error().Err(err).Str("path", s.cfg.Output).Msg("supervisor: writing report")
	}
}

// resolveLibrary returns the preload library's absolute path. An
// explicit --library flag wins; otherwise the supervisor looks for a
// shared object installed alongside its own executable, matching
// spec.md §4.10 step 1's "locate the preload library on disk".
func (s *Supervisor) resolveLibrary() (string, error) {
	if s.cfg.Library != "" {
		return filepath.Abs(s.cfg.Library)
	}

	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	// A missing library here is not itself fatal to the supervisor: the
	// dynamic linker, not this process, is what actually needs the file
	// to exist, and only once the root child is spawned.
	return filepath.Join(filepath.Dir(exe), defaultLibraryName()), nil
}

func defaultLibraryName() string {
	if runtime.GOOS == "darwin" {
		return "libexec.dylib"
	}
	return "libexec.so"
}

// allocateEndpoint binds the collector to a fresh Unix socket path under
// a private temporary directory, per spec.md §4.10 step 1's "bind a local
// socket". The returned cleanup removes the directory once the build is
// done.
func allocateEndpoint() (endpoint string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "bear-")
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(dir, "collector.sock"), func() { _ = os.RemoveAll(dir) }, nil
}

// wrapperPrograms resolves the real path of the compiler the wrapper
// shim (C13) stands in for, so the collector's ResolveProgram RPC has
// something to answer with. Resolution happens against the supervisor's
// own (unmodified) PATH, before the child's PATH is prefixed with
// WrapperDir.
func (s *Supervisor) wrapperPrograms() map[string]string {
	if s.cfg.WrapperPath == "" {
		return nil
	}
	name := filepath.Base(s.cfg.WrapperPath)
	real, err := exec.LookPath(name)
	if err != nil {
		s.logger.Warn().Err(err).Str("program", name).Msg("supervisor: could not resolve wrapper target")
		return nil
	}
	return map[string]string{name: real}
}

// buildChildEnvironment implements spec.md §4.10 step 3 and §6's
// environment-propagation rules: the three session keys upserted, and
// the platform preload-list variable prepended with the library path,
// deduplicated. Wrapper mode additionally prefixes PATH with WrapperDir.
func (s *Supervisor) buildChildEnvironment(base []string, libraryPath, endpoint string) []string {
	env := envToMap(base)

	if s.cfg.preloadMode() {
		preloadVar, forceVar := platformPreloadVar()
		env[preloadVar] = session.PrependPreloadEntry(env[preloadVar], libraryPath)
		if forceVar != "" {
			env[forceVar] = "1"
		}
	}

	env = session.UpsertKeys(env, libraryPath, endpoint, s.cfg.Verbose)

	if s.cfg.wrapperMode() {
		env["PATH"] = session.PrependPreloadEntry(env["PATH"], s.cfg.WrapperDir)
	}

	return mapToEnv(env)
}

func platformPreloadVar() (preloadVar, forceVar string) {
	if runtime.GOOS == "darwin" {
		return session.PreloadVarDarwin, session.ForcePreloadVar
	}
	return session.PreloadVarLinux, ""
}

func envToMap(env []string) map[string]string {
	return session.EnvironToMap(env)
}

func mapToEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// exitCodeFromWait translates cmd.Wait's error into the exit code
// spec.md §6 mandates: the child's own code when it exited normally, or
// 128+signo when it was killed by a signal.
func exitCodeFromWait(waitErr error) int {
	if waitErr == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 1
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return exitErr.ExitCode()
}
