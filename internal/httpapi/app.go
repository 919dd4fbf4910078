package httpapi

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
)

const contextKeyRequestID = "_artifactrelay_request_id"

// NewApp builds the single-listener Fiber application fronting the
// Request Bridge. Every request reaches the same Handler — there is
// only one repository protocol to serve, so no Host- or port-based
// routing is needed.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{CaseSensitive: true})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.All("/*", h.Handle)

	return app
}

func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}
