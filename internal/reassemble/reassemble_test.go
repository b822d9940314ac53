package reassemble

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizsotto/Bear-sub001/internal/event"
)

func at(base time.Time, seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func TestReassembleSingleExecution(t *testing.T) {
	base := time.Now()
	started := event.NewStarted(1, 100, 1, "/bin/true", []string{"true"}, "/tmp", nil)
	started.Timestamp = at(base, 0)
	terminated := event.NewTerminated(1, 100, 1, 0)
	terminated.Timestamp = at(base, 1)

	out := Reassemble([]event.Event{started, terminated}, zerolog.Nop())

	require.Len(t, out, 1)
	assert.Equal(t, event.Started, out[0].Run.Events[0].Kind())
	assert.Equal(t, event.Terminated, out[0].Run.Events[len(out[0].Run.Events)-1].Kind())
}

func TestReassembleDropsOrphanEvents(t *testing.T) {
	terminated := event.NewTerminated(1, 999, 1, 0)
	out := Reassemble([]event.Event{terminated}, zerolog.Nop())
	assert.Empty(t, out)
}

func TestReassemblePidReuseStartsNewRecord(t *testing.T) {
	base := time.Now()
	first := event.NewStarted(1, 100, 1, "/bin/a", []string{"a"}, "/tmp", nil)
	first.Timestamp = at(base, 0)
	second := event.NewStarted(1, 100, 1, "/bin/b", []string{"b"}, "/tmp", nil)
	second.Timestamp = at(base, 1)
	terminated := event.NewTerminated(1, 100, 1, 0)
	terminated.Timestamp = at(base, 2)

	out := Reassemble([]event.Event{first, second, terminated}, zerolog.Nop())

	require.Len(t, out, 2)
	assert.Equal(t, "/bin/a", out[0].Command.Program)
	assert.Len(t, out[0].Run.Events, 1)
	assert.Equal(t, "/bin/b", out[1].Command.Program)
	assert.Len(t, out[1].Run.Events, 2) // started + terminated attach to the newer record
}

func TestReassembleTwoConcurrentProcesses(t *testing.T) {
	base := time.Now()
	a := event.NewStarted(1, 10, 1, "/usr/bin/gcc", []string{"gcc", "-c", "x.c"}, "/src", nil)
	a.Timestamp = at(base, 0)
	b := event.NewStarted(1, 11, 1, "/usr/bin/gcc", []string{"gcc", "-c", "y.c"}, "/src", nil)
	b.Timestamp = at(base, 0)

	out := Reassemble([]event.Event{a, b}, zerolog.Nop())

	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].Command.Argv, out[1].Command.Argv)
}
