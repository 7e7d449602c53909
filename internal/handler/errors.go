package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/internal/storage"
	"github.com/subgen/api/internal/tracker"
	"github.com/subgen/api/pkg/response"
)

// writeServiceError maps service errors onto the response envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	var failed *service.JobFailedError
	switch {
	case errors.Is(err, storage.ErrInvalidKey):
		return response.ValidationError(c, "Invalid file name", map[string]string{"file": "invalid"})
	case errors.Is(err, tracker.ErrMissingTargetLanguage):
		return response.ValidationError(c, "Target language is required when translation is needed", map[string]string{"TargetLanguage": "required_if"})
	case errors.As(err, &failed):
		return response.JobFailed(c, "Subtitle generation failed", map[string]string{
			"key":    failed.Key,
			"reason": failed.Reason,
		})
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "No completed job for this file")
	case errors.Is(err, service.ErrInconsistentState):
		return response.InconsistentState(c, "Job artifacts are missing, please upload again")
	case errors.Is(err, service.ErrShuttingDown):
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Server is shutting down", nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}
