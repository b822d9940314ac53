package wrapper

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizsotto/Bear-sub001/internal/bearerr"
	"github.com/rizsotto/Bear-sub001/internal/collector"
	"github.com/rizsotto/Bear-sub001/internal/eventdb"
	"github.com/rizsotto/Bear-sub001/internal/session"
)

func startCollector(t *testing.T, programs map[string]string) *collector.Server {
	t.Helper()
	col := collector.New(collector.Config{
		Endpoint: filepath.Join(t.TempDir(), "collector.sock"),
		DB:       eventdb.NewInMemory(),
		Programs: programs,
		Library:  "/opt/bear/libexec.so",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, col.Start())
	t.Cleanup(func() { _ = col.Stop() })
	return col
}

func TestRunResolvesAndExecsRealCompiler(t *testing.T) {
	col := startCollector(t, map[string]string{"cc": "/usr/bin/real-cc"})
	sess := session.ForTest(t, "/opt/bear/libexec.so", col.Endpoint(), false)

	var gotPath string
	var gotArgv, gotEnv []string
	execFunc = func(path string, argv, env []string) error {
		gotPath, gotArgv, gotEnv = path, argv, env
		return nil
	}
	t.Cleanup(func() { execFunc = realExecFunc })

	err := Run(sess, "cc", []string{"cc", "-c", "main.c"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/real-cc", gotPath)
	assert.Equal(t, []string{"/usr/bin/real-cc", "-c", "main.c"}, gotArgv)
	assert.NotEmpty(t, gotEnv)
}

func TestRunFailsWithoutValidSession(t *testing.T) {
	err := Run(&session.Session{}, "cc", []string{"cc"})
	assert.ErrorIs(t, err, bearerr.ErrConfigMissing)
}

func TestRunFailsOnUnknownProgram(t *testing.T) {
	col := startCollector(t, map[string]string{})
	sess := session.ForTest(t, "/opt/bear/libexec.so", col.Endpoint(), false)

	execFunc = func(path string, argv, env []string) error { return nil }
	t.Cleanup(func() { execFunc = realExecFunc })

	err := Run(sess, "cc", []string{"cc"})
	assert.ErrorIs(t, err, bearerr.ErrInvalidProgram)
}
