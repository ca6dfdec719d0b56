package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

func postID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid post id")
	}
	return int64(id), nil
}

var badRequest = []error{
	models.ErrEmptyContent,
	models.ErrScheduledTimeRequired,
	models.ErrScheduledTimeInPast,
	models.ErrInvalidImage,
	models.ErrImageTooLarge,
	models.ErrCredentialExpired,
	service.ErrNotPublished,
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, models.ErrPostNotFound) || errors.Is(err, models.ErrUserNotFound) {
		return fiber.StatusNotFound
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return fiber.StatusBadRequest
		}
	}
	var te *models.TransitionError
	var pe *time.ParseError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// writeError maps service errors onto status codes. Internal errors are
// logged and hidden from the caller.
func writeError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError && !errors.Is(err, models.ErrArmFailed) {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		msg = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
