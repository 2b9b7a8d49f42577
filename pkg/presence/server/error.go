package server

import (
	"errors"

	"github.com/argus-labs/presence/pkg/presence"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message string `json:"message"`
}

var ErrorHandler = func(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Status(code).JSON(ErrorResponse{Error: Error{Message: err.Error()}})
}

// statusOf maps engine and feed errors onto HTTP errors.
func statusOf(err error) error {
	switch {
	case err == nil:
		return nil
	case eris.Is(err, presence.ErrInvalidAmount), eris.Is(err, presence.ErrUnknownMode),
		eris.Is(err, host.ErrInvalidEvent):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case eris.Is(err, presence.ErrUnknownStatus), eris.Is(err, host.ErrPlayerOffline):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case eris.Is(err, presence.ErrEngineStopped):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
