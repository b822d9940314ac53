package intercept

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizsotto/Bear-sub001/internal/event"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

func startEchoCollector(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					payload, err := event.ReadFrame(c)
					if err != nil {
						return
					}
					_ = payload
				}
			}(conn)
		}
	}()
	return path
}

// testSession sidesteps session.Current(), which is process-global and
// lazily initialized from os.Environ() exactly once — not something
// unit tests can safely rebind. Handle takes a *session.Session
// directly for exactly this reason.
func testSession(t *testing.T, endpoint string) *session.Session {
	t.Helper()
	return session.ForTest(t, "/opt/bear/libexec.so", endpoint, false)
}

func TestHandleInvalidSessionPassesThrough(t *testing.T) {
	result, err := Handle(&session.Session{}, Call{
		Lookup:     CurrentDirectory,
		File:       "/bin/true",
		Argv:       []string{"true"},
		WorkingDir: "/tmp",
		Envp:       map[string]string{"FOO": "bar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/bin/true", result.Executable)
	assert.Equal(t, map[string]string{"FOO": "bar"}, result.Envp)
}

func TestHandleResolvesAndPropagatesSessionKeys(t *testing.T) {
	endpoint := startEchoCollector(t)
	sess := testSession(t, endpoint)

	result, err := Handle(sess, Call{
		Lookup:     CurrentDirectory,
		File:       "/bin/true",
		Argv:       []string{"true"},
		WorkingDir: "/tmp",
		Envp:       map[string]string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "/bin/true", result.Executable)
	assert.Equal(t, "/opt/bear/libexec.so", result.Envp[session.EnvLibrary])
	assert.Equal(t, endpoint, result.Envp[session.EnvDestination])
}

func TestHandleResolutionFailureReturnsErrorWithoutEnvp(t *testing.T) {
	sess := testSession(t, startEchoCollector(t))

	_, err := Handle(sess, Call{
		Lookup:     Path,
		File:       "nonexistent-xyz",
		Argv:       []string{"nonexistent-xyz"},
		WorkingDir: "/tmp",
		Envp:       map[string]string{"PATH": "/tmp"},
	})
	assert.Error(t, err)
}

func TestHandleShellSetsSessionKeysOnProcessEnvironment(t *testing.T) {
	endpoint := startEchoCollector(t)
	sess := testSession(t, endpoint)

	t.Setenv(session.EnvLibrary, "")
	HandleShell(sess, "echo hi", "/tmp")
	assert.Equal(t, "/opt/bear/libexec.so", os.Getenv(session.EnvLibrary))
}

func TestHandleNoEnvpResolvesAndAppliesToProcessEnvironment(t *testing.T) {
	endpoint := startEchoCollector(t)
	sess := testSession(t, endpoint)

	resolved, err := HandleNoEnvp(sess, CurrentDirectory, "/bin/true", []string{"true"}, "/tmp", "")
	require.NoError(t, err)
	assert.Equal(t, "/bin/true", resolved)
	assert.Equal(t, endpoint, os.Getenv(session.EnvDestination))
}
