package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
)

// httpStatus maps the error taxonomy onto an HTTP status via its gRPC code.
func httpStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch common.Classify(err) {
	case codes.InvalidArgument:
		return fiber.StatusBadRequest
	case codes.NotFound:
		return fiber.StatusNotFound
	case codes.Unauthenticated:
		return fiber.StatusUnauthorized
	case codes.ResourceExhausted:
		return fiber.StatusTooManyRequests
	case codes.Unavailable, codes.Aborted:
		return fiber.StatusServiceUnavailable
	case codes.Canceled, codes.DeadlineExceeded:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := httpStatus(err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
