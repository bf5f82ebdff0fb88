package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError carries a stable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Codes used only by the transport.
const (
	codeUnauthenticated = "unauthenticated"
	codeForbidden       = "forbidden"
	codeBadRequest      = "bad_request"
	codeRouteNotFound   = "route_not_found"
)

func writeJSON(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: requestID(c),
	})
}

func writeList[T any](c *fiber.Ctx, items []T) error {
	if items == nil {
		items = []T{}
	}
	return c.Status(fiber.StatusOK).JSON(JSONResponse{
		Success:   true,
		Data:      items,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1", Count: len(items)},
		RequestID: requestID(c),
	})
}

func writeJSONError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestID(c),
	})
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case shared.CodeNotFound:
		return fiber.StatusNotFound
	case shared.CodeUnauthorized:
		return fiber.StatusForbidden
	case shared.CodeInvalidTransition, shared.CodeAlreadySettled, shared.CodeConflict:
		return fiber.StatusConflict
	case shared.CodeInsufficientFunds:
		return fiber.StatusUnprocessableEntity
	case shared.CodeValidation:
		return fiber.StatusBadRequest
	case shared.CodeUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler is the fiber.Config ErrorHandler. Handlers return domain
// errors as-is and this turns them into the envelope.
func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := codeBadRequest
			switch fe.Code {
			case fiber.StatusNotFound:
				code = codeRouteNotFound
			case fiber.StatusMethodNotAllowed:
				code = codeRouteNotFound
			case fiber.StatusUnauthorized:
				code = codeUnauthenticated
			case fiber.StatusForbidden:
				code = codeForbidden
			}
			if fe.Code >= fiber.StatusInternalServerError {
				code = shared.CodeInternal
			}
			return writeJSONError(c, fe.Code, code, fe.Message)
		}

		code := shared.Code(err)
		status := StatusFor(code)
		message := err.Error()

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				logger.String("path", c.Path()),
				logger.String("code", code),
				logger.String("request_id", requestID(c)),
				logger.Err(err),
			)
			if code == shared.CodeInternal {
				message = "An unexpected error occurred"
			}
		}

		var de *shared.DomainError
		if errors.As(err, &de) && status < fiber.StatusInternalServerError {
			message = de.Message
			if de.Err != nil {
				message += ": " + de.Err.Error()
			}
		}
		return writeJSONError(c, status, code, message)
	}
}
