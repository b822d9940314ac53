package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// isoMicro is the ISO-8601 microsecond-resolution layout spec.md §6
// specifies for the wire's "ts" field.
const isoMicro = "2006-01-02T15:04:05.000000Z07:00"

type wireStarted struct {
	Executable  string            `json:"executable"`
	Arguments   []string          `json:"arguments"`
	WorkingDir  string            `json:"working_dir"`
	Environment map[string]string `json:"environment"`
}

type wireSignalled struct {
	Number int `json:"number"`
}

type wireTerminated struct {
	Status int `json:"status"`
}

// wireEvent is the exact JSON shape of spec.md §6's "Reporter→Collector
// protocol": rid, ts, pid, ppid, and exactly one of started/signalled/
// terminated. Field names are part of the stable external contract and
// must not change independently of spec.md.
type wireEvent struct {
	RID        int64           `json:"rid"`
	TS         string          `json:"ts"`
	PID        int             `json:"pid"`
	PPID       int             `json:"ppid"`
	Started    *wireStarted    `json:"started,omitempty"`
	Signalled  *wireSignalled  `json:"signalled,omitempty"`
	Terminated *wireTerminated `json:"terminated,omitempty"`
}

// Marshal encodes an Event into its wire JSON representation.
func Marshal(e Event) ([]byte, error) {
	w := wireEvent{
		RID:  e.ReporterID,
		TS:   e.Timestamp.UTC().Format(isoMicro),
		PID:  e.PID,
		PPID: e.PPID,
	}
	switch {
	case e.Started != nil:
		env := e.Started.Environment
		if env == nil {
			env = map[string]string{}
		}
		argv := e.Started.Argv
		if argv == nil {
			argv = []string{}
		}
		w.Started = &wireStarted{
			Executable:  e.Started.Executable,
			Arguments:   argv,
			WorkingDir:  e.Started.WorkingDir,
			Environment: env,
		}
	case e.Signalled != nil:
		w.Signalled = &wireSignalled{Number: e.Signalled.Number}
	case e.Terminated != nil:
		w.Terminated = &wireTerminated{Status: e.Terminated.Status}
	default:
		return nil, fmt.Errorf("event: no payload set")
	}
	return json.Marshal(w)
}

// Unmarshal decodes an Event from its wire JSON representation.
func Unmarshal(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}

	ts, err := time.Parse(isoMicro, w.TS)
	if err != nil {
		// Tolerate any RFC3339-compatible timestamp a future sender
		// might emit with a different sub-second precision.
		ts, err = time.Parse(time.RFC3339Nano, w.TS)
		if err != nil {
			return Event{}, fmt.Errorf("event: decode timestamp %q: %w", w.TS, err)
		}
	}

	e := Event{ReporterID: w.RID, Timestamp: ts, PID: w.PID, PPID: w.PPID}

	switch {
	case w.Started != nil:
		e.Started = &StartedPayload{
			Executable:  w.Started.Executable,
			Argv:        w.Started.Arguments,
			WorkingDir:  w.Started.WorkingDir,
			Environment: w.Started.Environment,
		}
	case w.Signalled != nil:
		e.Signalled = &SignalledPayload{Number: w.Signalled.Number}
	case w.Terminated != nil:
		e.Terminated = &TerminatedPayload{Status: w.Terminated.Status}
	default:
		return Event{}, fmt.Errorf("event: record has no started/signalled/terminated payload")
	}
	return e, nil
}

// IsEventRecord reports whether a raw JSON payload looks like a wire
// Event rather than an auxiliary RPC request (spec.md §6's
// ResolveProgram/UpdateEnvironment). Event records are distinguished
// structurally: the check accepts any payload that carries "rid" and no
// "method" key. Whether one of the three payload keys is present is left
// to Unmarshal, which rejects a record without one.
func IsEventRecord(raw json.RawMessage) bool {
	var peek struct {
		Method *string `json:"method"`
		RID    *int64  `json:"rid"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return false
	}
	return peek.Method == nil && peek.RID != nil
}
