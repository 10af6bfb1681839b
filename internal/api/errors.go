package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/cohortlab/cohort/internal/types"
)

// mapError translates domain errors into HTTP status codes.
// Validation errors map to 400, missing audiences to 404, everything
// else surfaces as 500 through the fiber error handler.
func mapError(err error) error {
	switch {
	case errors.Is(err, types.ErrAudienceNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidAudienceID), errors.Is(err, types.ErrNameRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}
