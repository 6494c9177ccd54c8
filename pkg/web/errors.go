package web

import (
	"errors"

	"github.com/dukex/assetflow/pkg/graph"
	"github.com/dukex/assetflow/pkg/runner"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleGraphError maps graph lookups to 404 and everything else to 500.
func handleGraphError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, graph.ErrUnknownUnit):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("asset_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, graph.ErrUnknownJob), errors.Is(err, runner.ErrUnknownJob):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("job_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, runner.ErrAssetNotInJob):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("asset_not_in_job").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	default:
		return internalError(c, err)
	}
}
