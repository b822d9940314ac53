package eventdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizsotto/Bear-sub001/internal/event"
)

func TestInsertAndIterateOrdersByTimestamp(t *testing.T) {
	db := NewInMemory()

	base := time.Now()
	e1 := event.NewStarted(1, 10, 1, "/bin/a", []string{"a"}, "/tmp", nil)
	e1.Timestamp = base.Add(2 * time.Second)
	e2 := event.NewStarted(1, 11, 1, "/bin/b", []string{"b"}, "/tmp", nil)
	e2.Timestamp = base

	require.NoError(t, db.Insert(e1))
	require.NoError(t, db.Insert(e2))

	got := db.IterateByTimestamp()
	require.Len(t, got, 2)
	assert.Equal(t, "/bin/b", got[0].Started.Executable)
	assert.Equal(t, "/bin/a", got[1].Started.Executable)
}

func TestIterateTieBreaksBySequence(t *testing.T) {
	db := NewInMemory()

	ts := time.Now()
	e1 := event.NewStarted(1, 10, 1, "/bin/first", nil, "/tmp", nil)
	e1.Timestamp = ts
	e2 := event.NewStarted(1, 11, 1, "/bin/second", nil, "/tmp", nil)
	e2.Timestamp = ts

	require.NoError(t, db.Insert(e1))
	require.NoError(t, db.Insert(e2))

	got := db.IterateByTimestamp()
	require.Len(t, got, 2)
	assert.Equal(t, "/bin/first", got[0].Started.Executable)
	assert.Equal(t, "/bin/second", got[1].Started.Executable)
}

func TestFileBackedDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	db, err := NewFile(path)
	require.NoError(t, err)

	require.NoError(t, db.Insert(event.NewStarted(1, 1, 0, "/bin/true", []string{"true"}, "/tmp", nil)))
	require.NoError(t, db.Insert(event.NewTerminated(1, 1, 0, 0)))
	require.NoError(t, db.Close())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "/bin/true", loaded[0].Started.Executable)
	assert.Equal(t, 0, loaded[1].Terminated.Status)
}

func TestLoadFileTolerantOfTruncatedTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	db, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, db.Insert(event.NewTerminated(1, 1, 0, 0)))
	require.NoError(t, db.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n{\"rid\":1,\"pid\":2,\"trunc")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}
