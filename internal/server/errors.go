package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"crashfair/internal/database"
	"crashfair/internal/fairness"
	"crashfair/internal/game"
	"crashfair/internal/wallet"
)

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case game.IsCallerError(err),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, fairness.ErrNoTickets):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrUnknownGame),
		errors.Is(err, fairness.ErrUnknownGame),
		errors.Is(err, database.ErrRoundNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrQueueFull), errors.Is(err, game.ErrStopped):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, game.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return errorJSON(c, err)
}
