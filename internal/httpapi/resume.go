package httpapi

import (
	"net/http"
	"sync"

	"github.com/cachehub/artifactrelay/internal/store"
)

// outcomeKind distinguishes the three ways a suspended request can be
// resumed by the Race Coordinator.
type outcomeKind int

const (
	outcomeEntry outcomeKind = iota
	outcomeFailed
	outcomeFailedMessage
)

type outcome struct {
	kind    outcomeKind
	status  int
	entry   *store.Entry
	headers http.Header
	message string
}

// resumeAdapter bridges race.Receiver onto a suspended HTTP handler
// goroutine. It guarantees at-most-once resume: a second resume of an
// already-resumed request is a programming error, not a retry — it
// panics rather than silently dropping the second outcome.
type resumeAdapter struct {
	done chan struct{}

	mu      sync.Mutex
	resumed bool
	result  outcome
}

func newResumeAdapter() *resumeAdapter {
	return &resumeAdapter{done: make(chan struct{})}
}

func (a *resumeAdapter) Receive(status int, entry *store.Entry, headers http.Header) {
	a.resume(outcome{kind: outcomeEntry, status: status, entry: entry, headers: headers})
}

func (a *resumeAdapter) Failed(status int) {
	a.resume(outcome{kind: outcomeFailed, status: status})
}

func (a *resumeAdapter) FailedWithMessage(status int, message string) {
	a.resume(outcome{kind: outcomeFailedMessage, status: status, message: message})
}

func (a *resumeAdapter) resume(o outcome) {
	a.mu.Lock()
	if a.resumed {
		a.mu.Unlock()
		panic("httpapi: receiverAdapter resumed more than once for the same request")
	}
	a.resumed = true
	a.result = o
	a.mu.Unlock()
	close(a.done)
}
