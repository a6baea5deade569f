package web

import (
	"github.com/dukex/wardflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType(string(services.KindValidation)).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	kind := services.Kind(err)

	var status int

	switch kind {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindMissingSelection:
		status = fiber.StatusUnprocessableEntity
	case services.KindExpired, services.KindInvalidTransition, services.KindUnmatchedRequest,
		services.KindDuplicateActive:
		status = fiber.StatusConflict
	case services.KindConcurrencyConflict:
		// same request may succeed once the competing writer is done
		c.Set(fiber.HeaderRetryAfter, "1")

		status = fiber.StatusConflict
	case services.KindTransientIO:
		status = fiber.StatusServiceUnavailable
	default:
		// Log unexpected errors but don't expose details
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType(string(services.KindInternal)).
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(string(kind)).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
