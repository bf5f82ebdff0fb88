package http

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitquest/duel-engine/pkg/logger"
)

// Header and locals keys.
const (
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"
	HeaderRequestID  = "X-Request-ID"

	localRequestID = "request_id"
	localCallerID  = "caller_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// gatewayAuth accepts only requests carrying the gateway's bearer token.
// An empty token disables the check.
func gatewayAuth(token string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return writeJSONError(c, fiber.StatusUnauthorized, codeUnauthenticated, "gateway authentication token missing")
		}
		got := strings.TrimPrefix(header, "Bearer ")
		if !tokenEqual(got, token) {
			log.Warn("invalid gateway token",
				logger.String("path", c.Path()),
				logger.String("request_id", requestID(c)),
			)
			return writeJSONError(c, fiber.StatusUnauthorized, codeUnauthenticated, "invalid gateway authentication token")
		}
		return c.Next()
	}
}

// callerIdentity reads the user id the gateway resolved.
func callerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderUserID))
		if id == "" {
			return writeJSONError(c, fiber.StatusUnauthorized, codeUnauthenticated, HeaderUserID+" header is required")
		}
		c.Locals(localCallerID, id)
		return c.Next()
	}
}

// adminAuth guards operator routes. Without a configured token the routes
// are closed.
func adminAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" || !tokenEqual(c.Get(HeaderAdminToken), token) {
			return writeJSONError(c, fiber.StatusForbidden, codeForbidden, "admin token required")
		}
		return c.Next()
	}
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// requestLogger logs every request and attaches a request-scoped logger to the
// user context.
func requestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqLog := log.WithRequestID(requestID(c))
		c.SetUserContext(logger.WithContext(c.UserContext(), reqLog))

		err := c.Next()
		if err != nil {
			// Let the error handler write the status before logging it.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		reqLog.Info("http request",
			logger.String("method", c.Method()),
			logger.String("path", c.Path()),
			logger.Int("status", c.Response().StatusCode()),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.IP()),
		)
		return nil
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(localRequestID).(string); ok {
		return id
	}
	return ""
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(localCallerID).(string)
	return id
}
