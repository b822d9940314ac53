// Package reassemble implements C9: folding a flat, timestamp-ordered
// event stream into per-process Execution records.
package reassemble

import (
	"github.com/rs/zerolog"

	"github.com/rizsotto/Bear-sub001/internal/event"
)

// Reassemble implements the algorithm of spec.md §4.9. events must
// already be ordered by (timestamp, sequence) — eventdb.DB.
// IterateByTimestamp provides exactly that ordering.
//
// For each event:
//   - Started: if no open record exists for pid, start one. If one
//     already exists (the pid was reused, or the process exec'ed into a
//     fresh interceptable binary), the existing record is left exactly
//     as it stands — it already holds everything it will ever hold — and
//     a new record begins.
//   - Signalled/Terminated: appended to the open record for pid if one
//     exists; dropped (with a verbose log) otherwise.
//
// The returned slice is ordered by the timestamp of each record's
// Started event, which is simply construction order since input is
// already timestamp-ordered.
func Reassemble(events []event.Event, logger zerolog.Logger) []event.Execution {
	var out []event.Execution
	open := make(map[int]int) // pid -> index into out

	for _, e := range events {
		switch e.Kind() {
		case event.Started:
			idx := len(out)
			out = append(out, event.Execution{
				Command: event.Command{
					Program:     e.Started.Executable,
					Argv:        e.Started.Argv,
					WorkingDir:  e.Started.WorkingDir,
					Environment: e.Started.Environment,
				},
				Run: event.Run{
					PID:    e.PID,
					PPID:   e.PPID,
					Events: []event.Event{e},
				},
			})
			open[e.PID] = idx

		case event.Signalled, event.Terminated:
			idx, ok := open[e.PID]
			if !ok {
				logger.Debug().Int("pid", e.PID).Str("kind", e.Kind().String()).
					Msg("reassemble: dropping event with no matching Started")
				continue
			}
			out[idx].Run.Events = append(out[idx].Run.Events, e)
		}
	}

	return out
}
