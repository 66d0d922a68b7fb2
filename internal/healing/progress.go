package healing

import (
	"fmt"
	"io"
)

// Event represents a single progress update during a healing run.
type Event struct {
	Type     string   `json:"type"`               // "state", "retry", "done", "error"
	TestRef  string   `json:"test_ref,omitempty"` // test the event belongs to
	State    State    `json:"state,omitempty"`
	Strategy Strategy `json:"strategy,omitempty"`
	Try      int      `json:"try,omitempty"` // current AI try
	MaxTries int      `json:"max,omitempty"` // configured retry ceiling
	Message  string   `json:"message,omitempty"`
}

// Emitter receives progress events during healing.
type Emitter interface {
	Emit(event Event)
}

// TextEmitter formats progress events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev Event) {
	switch ev.Type {
	case "state":
		fmt.Fprintf(e.W, "[%s] %s\n", ev.TestRef, ev.State)
	case "retry":
		fmt.Fprintf(e.W, "[%s] AI try %d/%d failed: %s\n", ev.TestRef, ev.Try, ev.MaxTries, ev.Message)
	case "done":
		fmt.Fprintf(e.W, "[%s] %s (%s)\n", ev.TestRef, ev.State, ev.Strategy)
	case "error":
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}
