package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestForwarderRelaysSignalToChild(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap 'exit 7' TERM; sleep 5 & wait")
	require.NoError(t, cmd.Start())

	f := NewForwarder(cmd.Process.Pid)
	defer f.Close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	f.relay(unix.SIGTERM)

	select {
	case err := <-done:
		exitErr, ok := err.(*exec.ExitError)
		require.True(t, ok)
		assert.Equal(t, 7, exitErr.ExitCode())
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("child did not exit after signal relay")
	}
}
