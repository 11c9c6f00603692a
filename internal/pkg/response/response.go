package response

import (
	"giftsplit-backend/internal/pkg/apperr"
	"giftsplit-backend/internal/pkg/logctx"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Kind       string      `json:"kind,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

const statusSuccess = "success"
const statusError = "error"

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusCreated, message, data, metadata)
}

func send(c *fiber.Ctx, code int, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(code).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// FromError classifies err and sends it in the standard error format.
// Unclassified and integrity errors are logged; their cause never leaves the process.
func FromError(c *fiber.Ctx, err error) error {
	code := apperr.StatusCode(err)
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindIntegrity || kind == apperr.KindUpstream {
		requestLogger(c).Error().Err(err).Str("kind", kind.String()).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    apperr.PublicMessage(err),
			StatusCode: code,
			Kind:       kind.String(),
			Details:    map[string]interface{}{},
		},
	})
}

// requestLogger prefers the trace-bound logger the Tracing middleware stores
// on the user context.
func requestLogger(c *fiber.Ctx) *zerolog.Logger {
	return logctx.From(c.UserContext())
}
