// Package race implements the race coordinator: for one cache miss,
// it fans out an Upstream Fetch per configured upstream, keeps the first
// success, cancels the rest, promotes the winner into the Store, and
// reports exactly one terminal outcome to the caller's Receiver.
package race

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cachehub/artifactrelay/internal/fetch"
	"github.com/cachehub/artifactrelay/internal/idgen"
	"github.com/cachehub/artifactrelay/internal/negcache"
	"github.com/cachehub/artifactrelay/internal/store"
)

// NotFoundStatus is used only when there was no upstream to even try
// (an empty or entirely malformed upstream list); every fetch that was
// actually attempted reports a concrete HTTP or transport-error status,
// never this fallback.
const NotFoundStatus = http.StatusNotFound

// Receiver is the at-most-once-invoked terminal callback surface for one
// Download call.
type Receiver interface {
	// Receive reports a successful download now resident in the Store.
	Receive(status int, entry *store.Entry, headers http.Header)
	// Failed reports that every upstream failed; status is the last
	// observed upstream's failure status (an HTTP status ≥ 400, or a
	// transport-error/connection-closed status from internal/fetch).
	Failed(status int)
	// FailedWithMessage reports an internal error (e.g. Store.Publish
	// failure) distinct from an upstream failure.
	FailedWithMessage(status int, message string)
}

// Coordinator owns the shared HTTP client, store, and negative cache used
// by every Download call.
type Coordinator struct {
	client    *http.Client
	store     store.Store
	negative  *negcache.Cache
	logger    *logrus.Logger
	upstreams []string
}

// New builds a Coordinator. upstreams is the ordered set of base URLs
// configured for this proxy; ordering is cosmetic, fetches race in
// parallel.
func New(client *http.Client, st store.Store, negative *negcache.Cache, logger *logrus.Logger, upstreams []string) *Coordinator {
	return &Coordinator{
		client:    client,
		store:     st,
		negative:  negative,
		logger:    logger,
		upstreams: upstreams,
	}
}

// download is the per-call state threaded through the fetch listeners.
type download struct {
	coordinator *Coordinator
	path        string
	downloadID  string
	receiver    Receiver

	resolveOnce sync.Once
	won         atomic.Bool
	remaining   atomic.Int32

	mu      sync.Mutex
	handles map[string]*fetch.Handle
}

// Download computes the set of upstream URLs for path, races a fetch
// against each, and arranges for the winner to be promoted into the
// Store. It returns immediately; the returned cancelHook cancels every
// still-running fetch (used when the client disconnects before the race
// finishes).
func (c *Coordinator) Download(ctx context.Context, path string, receiver Receiver) (cancelHook func()) {
	downloadID := idgen.Next()
	urls := make([]string, 0, len(c.upstreams))
	for _, base := range c.upstreams {
		joined, err := url.JoinPath(base, path)
		if err != nil {
			c.logfID(logrus.WarnLevel, "upstream_url_invalid", downloadID, path, "", 0, err, "")
			continue
		}
		urls = append(urls, joined)
	}

	d := &download{
		coordinator: c,
		path:        path,
		downloadID:  downloadID,
		receiver:    receiver,
		handles:     make(map[string]*fetch.Handle, len(urls)),
	}
	d.remaining.Store(int32(len(urls)))

	if len(urls) == 0 {
		d.resolveFailed(NotFoundStatus)
		return func() {}
	}

	for _, u := range urls {
		c.logfID(logrus.DebugLevel, "upstream_fetch_start", d.downloadID, path, u, 0, nil, "")
		listener := &fetchListener{download: d, upstream: u}
		handle := fetch.Start(ctx, c.client, u, listener)
		d.addHandle(u, handle)
	}

	return d.cancelAll
}

// addHandle registers a fetch handle unless the race has already been
// resolved (won, or cancelled) — in which case this upstream lost the
// race before it even got recorded, so it's cancelled immediately rather
// than being assigned into a map that cancelOthers/cancelAll already
// nilled out.
func (d *download) addHandle(upstream string, h *fetch.Handle) {
	d.mu.Lock()
	if d.handles == nil {
		d.mu.Unlock()
		h.Cancel()
		return
	}
	d.handles[upstream] = h
	d.mu.Unlock()
}

// fetchListener adapts fetch.Listener onto one download's bookkeeping.
type fetchListener struct {
	download *download
	upstream string
}

func (l *fetchListener) OnSuccess(upstream string, tempFile string, status int, headers http.Header) {
	l.download.onSuccess(upstream, tempFile, status, headers)
}

func (l *fetchListener) OnFail(upstream string, status int) {
	l.download.onFail(upstream, status)
}

// onSuccess: the first successful fetch to reach here wins; every other
// upstream is cancelled, the winner's temp file is promoted into the
// Store, and the receiver is resumed.
func (d *download) onSuccess(upstream string, tempFile string, status int, headers http.Header) {
	if !d.won.CompareAndSwap(false, true) {
		// Already won by another upstream; this one arrived late.
		removeQuietly(tempFile)
		return
	}

	d.cancelOthers(upstream)

	lastModified := parseLastModified(headers)
	entry, err := d.coordinator.store.Publish(d.path, tempFile, lastModified)
	var upstreamServer string
	if headers != nil {
		upstreamServer = headers.Get("Server")
	}
	d.coordinator.logfID(logrus.InfoLevel, "download_success", d.downloadID, d.path, upstream, status, nil, upstreamServer)
	if err != nil {
		d.resolveFailedWithMessage(http.StatusInternalServerError, err.Error())
		return
	}
	d.resolveReceive(status, entry, headers)
}

// onFail records one upstream's failure and, once every upstream for
// this download has failed, resolves the receiver and marks the path
// negative-cached.
func (d *download) onFail(upstream string, status int) {
	if d.won.Load() {
		return
	}

	d.mu.Lock()
	delete(d.handles, upstream)
	d.mu.Unlock()

	d.coordinator.logfID(logrus.DebugLevel, "upstream_fetch_failed", d.downloadID, d.path, upstream, status, nil, "")

	if remaining := d.remaining.Add(-1); remaining != 0 {
		return
	}

	d.coordinator.negative.MarkFailed(d.path)
	d.resolveFailed(status)
}

func (d *download) cancelOthers(winner string) {
	d.mu.Lock()
	handles := d.handles
	d.handles = nil
	d.mu.Unlock()

	for u, h := range handles {
		if u == winner {
			continue
		}
		h.Cancel()
	}
}

// cancelAll is the cancelHook returned to the caller: it cancels every
// fetch still tracked for this download, used on client disconnect.
func (d *download) cancelAll() {
	d.mu.Lock()
	handles := d.handles
	d.handles = nil
	d.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

func (d *download) resolveReceive(status int, entry *store.Entry, headers http.Header) {
	d.resolveOnce.Do(func() { d.receiver.Receive(status, entry, headers) })
}

func (d *download) resolveFailed(status int) {
	d.resolveOnce.Do(func() { d.receiver.Failed(status) })
}

func (d *download) resolveFailedWithMessage(status int, message string) {
	d.resolveOnce.Do(func() { d.receiver.FailedWithMessage(status, message) })
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

// parseLastModified extracts the upstream Last-Modified header, falling
// back to current wall time when absent or unparseable.
func parseLastModified(headers http.Header) time.Time {
	if headers == nil {
		return time.Now().UTC()
	}
	raw := headers.Get("Last-Modified")
	if raw == "" {
		return time.Now().UTC()
	}
	parsed, err := http.ParseTime(raw)
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

// logfID emits one structured race-event log line. downloadID correlates
// every line for one Download call; upstreamServer carries the upstream's
// Server response header, when known, for operators diagnosing which
// mirror actually served a given artifact.
func (c *Coordinator) logfID(level logrus.Level, event, downloadID, path, upstream string, status int, err error, upstreamServer string) {
	if c.logger == nil {
		return
	}
	fields := logrus.Fields{
		"event":       event,
		"download_id": downloadID,
		"path":        path,
		"status":      status,
	}
	if upstream != "" {
		fields["upstream"] = upstream
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if upstreamServer != "" {
		fields["upstream_server"] = upstreamServer
	}
	c.logger.WithFields(fields).Log(level)
}
