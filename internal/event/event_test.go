package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartedSetsKind(t *testing.T) {
	e := NewStarted(1, 100, 1, "/bin/true", []string{"true"}, "/tmp", map[string]string{"A": "B"})
	assert.Equal(t, Started, e.Kind())
	assert.Equal(t, "/bin/true", e.Started.Executable)
}

func TestNewSignalledSetsKind(t *testing.T) {
	e := NewSignalled(1, 100, 1, 15)
	assert.Equal(t, Signalled, e.Kind())
	assert.Equal(t, 15, e.Signalled.Number)
}

func TestNewTerminatedSetsKind(t *testing.T) {
	e := NewTerminated(1, 100, 1, 0)
	assert.Equal(t, Terminated, e.Kind())
	assert.Equal(t, 0, e.Terminated.Status)
}

func TestMarshalUnmarshalRoundTripStarted(t *testing.T) {
	orig := NewStarted(7, 42, 1, "/usr/bin/cc", []string{"cc", "-c", "a.c"}, "/src", map[string]string{"PATH": "/usr/bin"})
	orig.Timestamp = orig.Timestamp.Truncate(time.Microsecond)

	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, orig.ReporterID, got.ReporterID)
	assert.Equal(t, orig.PID, got.PID)
	assert.Equal(t, orig.PPID, got.PPID)
	assert.True(t, orig.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, orig.Started, got.Started)
}

func TestMarshalUnmarshalRoundTripSignalled(t *testing.T) {
	orig := NewSignalled(1, 5, 1, 9)
	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, orig.Signalled, got.Signalled)
}

func TestMarshalUnmarshalRoundTripTerminated(t *testing.T) {
	orig := NewTerminated(1, 5, 1, 130)
	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, orig.Terminated, got.Terminated)
}

func TestIsEventRecordDistinguishesRPC(t *testing.T) {
	assert.True(t, IsEventRecord([]byte(`{"rid":1,"pid":2,"ppid":1,"terminated":{"status":0}}`)))
	assert.False(t, IsEventRecord([]byte(`{"method":"ResolveProgram","params":{}}`)))
}

func TestUnmarshalRejectsEmptyPayload(t *testing.T) {
	_, err := Unmarshal([]byte(`{"rid":1,"ts":"2024-01-01T00:00:00.000000Z","pid":1,"ppid":0}`))
	require.Error(t, err)
}
