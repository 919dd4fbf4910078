// Package httpapi implements the Request Bridge and its client-disconnect
// cancellation hook: the Fiber-facing HTTP surface that answers GET/HEAD for an
// artifact path from the local store, the negative cache, or a
// suspended Race Coordinator download.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/cachehub/artifactrelay/internal/logging"
	"github.com/cachehub/artifactrelay/internal/negcache"
	"github.com/cachehub/artifactrelay/internal/race"
	"github.com/cachehub/artifactrelay/internal/store"
)

// Handler wires the Artifact Store, Negative Cache, and Race
// Coordinator into one HTTP-facing decision point per request.
type Handler struct {
	store       store.Store
	negative    *negcache.Cache
	coordinator *race.Coordinator
	logger      *logrus.Logger
}

func NewHandler(st store.Store, negative *negcache.Cache, coordinator *race.Coordinator, logger *logrus.Logger) *Handler {
	return &Handler{store: st, negative: negative, coordinator: coordinator, logger: logger}
}

// Handle implements the full Request Bridge decision tree: reject
// malformed/unsupported requests, serve a store hit, short-circuit a
// known-failed path, or suspend behind a race for everything else.
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	method := c.Method()
	if method != http.MethodGet && method != http.MethodHead {
		return c.SendStatus(fiber.StatusMethodNotAllowed)
	}

	uri := c.Request().URI()
	rawPath := string(uri.Path())
	// Path() is already normalized ("/a/../b" reads as "/b"), so the ".."
	// check also looks at the path exactly as the client sent it.
	if strings.Contains(string(uri.PathOriginal()), "..") || strings.Contains(rawPath, "..") {
		return c.Status(fiber.StatusBadRequest).SendString(`path must not contain ".."`)
	}

	// browse=true / index=true are reserved for a sibling directory-listing
	// handler (out of scope here); we decline and let routing continue.
	if c.Query("browse") == "true" || c.Query("index") == "true" {
		return c.Next()
	}

	cleanPath, err := store.Clean(strings.TrimPrefix(rawPath, "/"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid artifact path")
	}
	if store.Segments(cleanPath) == 0 {
		return c.Next()
	}

	if result, findErr := h.store.Find(cleanPath); findErr == nil {
		serveErr := h.serveCacheHit(c, method, result)
		h.logRequest(c, cleanPath, true, http.StatusOK, started, serveErr)
		return serveErr
	} else if !errors.Is(findErr, store.ErrNotFound) {
		return c.Status(fiber.StatusBadRequest).SendString("invalid artifact path")
	}

	if h.negative.IsFailed(cleanPath) {
		h.logRequest(c, cleanPath, false, http.StatusNotFound, started, nil)
		return c.Status(fiber.StatusNotFound).SendString(http.StatusText(http.StatusNotFound))
	}

	return h.raceAndRespond(c, method, cleanPath, started)
}

// serveCacheHit implements the cache-hit response shape shared by
// direct store reads and a just-completed race.
func (h *Handler) serveCacheHit(c fiber.Ctx, method string, result *store.Result) error {
	defer result.Reader.Close()

	modTime := result.Entry.ModTime.Truncate(time.Second)
	if ims := c.Get(fiber.HeaderIfModifiedSince); ims != "" {
		if parsed, parseErr := http.ParseTime(ims); parseErr == nil && !modTime.After(parsed) {
			return c.SendStatus(fiber.StatusNotModified)
		}
	}

	c.Set(fiber.HeaderLastModified, modTime.UTC().Format(http.TimeFormat))
	c.Set(fiber.HeaderContentType, ContentType(result.Entry.Path))
	c.Set(fiber.HeaderCacheControl, "public, must-revalidate")
	c.Response().Header.SetContentLength(int(result.Entry.SizeBytes))
	c.Status(fiber.StatusOK)

	if method == http.MethodHead {
		return nil
	}

	_, copyErr := io.Copy(c.Response().BodyWriter(), result.Reader)
	return copyErr
}

// raceAndRespond implements the deferred-reply branch: a cache miss not
// already negative-cached suspends the request behind the Race
// Coordinator and installs a cancellation hook on the client
// channel's close notification.
func (h *Handler) raceAndRespond(c fiber.Ctx, method, path string, started time.Time) error {
	adapter := newResumeAdapter()
	cancelHook := h.coordinator.Download(context.Background(), path, adapter)

	clientCtx := c.Context()
	if clientCtx == nil {
		clientCtx = context.Background()
	}

	select {
	case <-clientCtx.Done():
		// Client channel closed before the race finished: cancel every
		// live fetch handle. The receiver is never resumed on this path
		// — no response is written either, since there is no client left
		// to write it to.
		cancelHook()
		return nil
	case <-adapter.done:
	}

	return h.writeOutcome(c, method, adapter.result, path, started)
}

func (h *Handler) writeOutcome(c fiber.Ctx, method string, o outcome, path string, started time.Time) error {
	switch o.kind {
	case outcomeEntry:
		result, err := h.store.Find(o.entry.Path)
		if err != nil {
			h.logRequest(c, path, false, fiber.StatusInternalServerError, started, err)
			return c.Status(fiber.StatusInternalServerError).SendString("artifact vanished after publish")
		}
		serveErr := h.serveCacheHit(c, method, result)
		h.logRequest(c, path, false, fiber.StatusOK, started, serveErr)
		return serveErr
	case outcomeFailedMessage:
		h.logRequest(c, path, false, o.status, started, errors.New(o.message))
		return c.Status(o.status).SendString(o.message)
	default: // outcomeFailed
		h.logRequest(c, path, false, o.status, started, nil)
		return c.Status(o.status).SendString(http.StatusText(o.status))
	}
}

func (h *Handler) logRequest(c fiber.Ctx, path string, cacheHit bool, status int, started time.Time, err error) {
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields(path, cacheHit, status, time.Since(started).Milliseconds())
	fields["event"] = "request"
	if reqID, ok := c.Locals(contextKeyRequestID).(string); ok && reqID != "" {
		fields["request_id"] = reqID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("request_failed")
		return
	}
	h.logger.WithFields(fields).Debug("request_served")
}
