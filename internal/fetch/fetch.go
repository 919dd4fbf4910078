// Package fetch implements one upstream fetch: a single HTTP GET against
// a single upstream, streaming the response body into a temp file and
// reporting exactly one terminal outcome to its listener.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// timeout bounds one upstream exchange end to end.
const timeout = 2 * time.Minute

// statusConnectionClosed is reported when the upstream closes the
// connection before sending any response — the AwaitingHeaders
// "connection closed" trigger.
const statusConnectionClosed = http.StatusForbidden

// statusTransportError is reported for every other transport-level
// failure: dial failure, TLS failure, timeout, or a body read/write
// error while streaming.
const statusTransportError = http.StatusInternalServerError

// Listener receives exactly one terminal callback per fetch.
type Listener interface {
	// OnSuccess reports a streamed 2xx body now sitting at tempFile,
	// not yet promoted into the store — promotion is the Race
	// Coordinator's job so that losers' temp files are discarded cheaply.
	OnSuccess(upstream string, tempFile string, status int, headers http.Header)

	// OnFail reports a terminal failure. status is the upstream HTTP
	// status when one was obtained; a fetch that never got a usable
	// response reports statusConnectionClosed or statusTransportError
	// instead, so status is never 0.
	OnFail(upstream string, status int)
}

// Handle lets the caller cancel an in-flight fetch. Cancel is idempotent.
// Once it returns, no Listener callback is started; a callback whose
// terminal transition happened before Cancel may still be running.
type Handle struct {
	state *fetchState
}

// Cancel aborts the fetch if it hasn't already reached a terminal state.
// Safe to call multiple times and from any goroutine.
func (h *Handle) Cancel() {
	h.state.cancel()
}

type fetchState struct {
	mu       sync.Mutex
	done     bool
	tempFile *os.File
	tempPath string
	cancelFn context.CancelFunc
}

// Start issues a GET for the upstream URL (a base URL already joined with
// the artifact path) against client and returns a
// Handle for cancellation. Network I/O happens on a background
// goroutine; Start itself never blocks.
func Start(ctx context.Context, client *http.Client, upstream string, listener Listener) *Handle {
	fetchCtx, cancelFn := context.WithTimeout(ctx, timeout)
	state := &fetchState{cancelFn: cancelFn}
	go run(fetchCtx, client, upstream, state, listener)
	return &Handle{state: state}
}

func run(ctx context.Context, client *http.Client, upstream string, state *fetchState, listener Listener) {
	defer state.cancelFn()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream, nil)
	if err != nil {
		state.terminate(func() { listener.OnFail(upstream, statusTransportError) })
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		// A cancelled context surfaces here as a *url.Error wrapping
		// context.Canceled; if Cancel got there first, terminate is a
		// no-op and the listener is never called. An EOF/unexpected-EOF
		// before any response was read means the upstream closed the
		// connection outright; everything else (dial failure, TLS
		// failure, timeout) is a generic transport error.
		status := statusTransportError
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			status = statusConnectionClosed
		}
		state.terminate(func() { listener.OnFail(upstream, status) })
		return
	}
	defer resp.Body.Close()

	// net/http's Client follows 3xx redirects (excluding 304) before
	// returning, so by the time we observe resp.StatusCode any
	// transparent redirect chain has already been resolved to a single
	// terminal status.
	if !isStreamableStatus(resp.StatusCode) {
		state.terminate(func() { listener.OnFail(upstream, resp.StatusCode) })
		return
	}

	tempFile, err := os.CreateTemp("", "artifactrelay-fetch-*")
	if err != nil {
		state.terminate(func() { listener.OnFail(upstream, statusTransportError) })
		return
	}

	if !state.beginStreaming(tempFile) {
		// Cancelled between receiving headers and opening the temp file.
		tempFile.Close()
		os.Remove(tempFile.Name())
		return
	}

	_, copyErr := io.Copy(tempFile, resp.Body)
	closeErr := tempFile.Close()
	if copyErr == nil {
		copyErr = closeErr
	}

	if copyErr != nil {
		state.terminate(func() {
			os.Remove(tempFile.Name())
			listener.OnFail(upstream, statusTransportError)
		})
		return
	}

	headers := resp.Header.Clone()
	status := resp.StatusCode
	path := tempFile.Name()
	state.terminate(func() { listener.OnSuccess(upstream, path, status, headers) })
}

func isStreamableStatus(status int) bool {
	return status == http.StatusOK || status == http.StatusNonAuthoritativeInfo
}

// beginStreaming records the temp file under the state lock unless the
// fetch has already been cancelled, in which case it reports false so
// the caller can discard the file without racing Cancel's own cleanup.
func (s *fetchState) beginStreaming(f *os.File) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.tempFile = f
	s.tempPath = f.Name()
	return true
}

// terminate marks the fetch done and invokes emit, unless cancellation
// beat it to the terminal transition. emit is responsible for any
// listener callback; terminate itself only guards the one-shot flag.
func (s *fetchState) terminate(emit func()) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	emit()
}

// cancel implements Handle.Cancel: idempotent abort that deletes any
// in-progress temp file. If the fetch had not yet reached a terminal
// state, the listener is never called; if it had, cancel does nothing.
func (s *fetchState) cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	tempPath := s.tempPath
	s.mu.Unlock()

	s.cancelFn()
	if tempPath != "" {
		os.Remove(tempPath)
	}
}
