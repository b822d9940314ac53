// Package recognizer defines the interface the supervisor (C10) uses to
// hand reassembled Executions to the compile-command recognizer.
// Recognizer logic itself — deciding whether an Execution is a compiler
// invocation and extracting (file, directory, arguments, output) — is an
// external collaborator per spec.md §1 and is out of scope here; this
// package only specifies the boundary and a trivial stub so the
// supervisor has something to wire against.
package recognizer

import "github.com/rizsotto/Bear-sub001/internal/event"

// Entry is one compile-command-database row. Output serialization to the
// downstream JSON format is likewise out of scope (spec.md §1).
type Entry struct {
	File      string
	Directory string
	Arguments []string
	Output    string
}

// Recognizer turns one Execution into zero or one Entry.
type Recognizer interface {
	Recognize(execution event.Execution) (Entry, bool)
}

// Null is a Recognizer that never recognizes anything. It exists so the
// supervisor's control flow (run build, reassemble, hand each Execution
// to the recognizer, write output) is exercised end to end without this
// repository having to implement — or guess at — real compiler-invocation
// heuristics.
type Null struct{}

func (Null) Recognize(event.Execution) (Entry, bool) { return Entry{}, false }
