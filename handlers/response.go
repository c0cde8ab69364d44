package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

// errorResponse renders err with the status its category maps to. Internal
// errors are logged and answered with a generic message.
func errorResponse(c *fiber.Ctx, err error) error {
	status := shared.HTTPStatus(err)
	body := fiber.Map{
		"success": false,
		"code":    shared.ErrorCode(err),
	}

	var serviceErr *shared.ServiceError
	isServiceErr := errors.As(err, &serviceErr)
	if status >= fiber.StatusInternalServerError {
		if isServiceErr {
			serviceErr.LogError()
		} else {
			logrus.WithFields(logrus.Fields{
				"component": "handlers",
				"path":      c.Path(),
				"method":    c.Method(),
			}).WithError(err).Error("Request failed")
		}
		body["error"] = "Internal server error"
	} else if isServiceErr {
		body["error"] = serviceErr.Message
		if serviceErr.Details != nil {
			body["details"] = serviceErr.Details
		}
	} else {
		body["error"] = err.Error()
	}

	return c.Status(status).JSON(body)
}

// FiberErrorHandler renders routing and framework errors in the API error shape
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		logrus.WithFields(logrus.Fields{
			"component": "handlers",
			"path":      c.Path(),
		}).WithError(err).Error("Unhandled error")
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    "HTTP_ERROR",
	})
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// clientIP prefers the first X-Forwarded-For entry over the socket address
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return "unknown"
}

func optionalHeader(c *fiber.Ctx, name string) *string {
	value := strings.TrimSpace(c.Get(name))
	if value == "" {
		return nil
	}
	return &value
}
