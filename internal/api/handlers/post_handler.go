package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
	"github.com/maheshrc27/linkedin-scheduler/internal/transfer"
)

type PostHandler struct {
	s        service.PostService
	maxImage int64
}

func NewPostHandler(service service.PostService, maxImage int64) *PostHandler {
	return &PostHandler{s: service, maxImage: maxImage}
}

// readImage returns the optional "image" part of a multipart form.
func (h *PostHandler) readImage(c *fiber.Ctx) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		// no file part, or not a multipart request
		return nil, nil
	}
	if h.maxImage > 0 && fh.Size > h.maxImage {
		return nil, models.ErrImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		log.Warn().Err(err).Msg("parse post form")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	image, err := h.readImage(c)
	if err != nil {
		return writeError(c, err)
	}

	post, err := h.s.CreatePost(c.UserContext(), GetUserID(c), &pc, image)
	if errors.Is(err, models.ErrArmFailed) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"post":  post,
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return writeError(c, err)
	}
	post, err := h.s.PostInfo(c.UserContext(), id, GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(post)
}

// transition runs one state-changing operation on the post named in the
// path and renders the result.
func (h *PostHandler) transition(c *fiber.Ctx, op func(id, userID int64) (*models.Post, error)) error {
	id, err := postID(c)
	if err != nil {
		return writeError(c, err)
	}
	post, err := op(id, GetUserID(c))
	if errors.Is(err, models.ErrArmFailed) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"post":  post,
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) Reschedule(c *fiber.Ctx) error {
	var body transfer.Reschedule
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "scheduled_time must be an RFC 3339 timestamp",
		})
	}
	return h.transition(c, func(id, userID int64) (*models.Post, error) {
		return h.s.Schedule(c.UserContext(), id, userID, body.ScheduledTime)
	})
}

func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	return h.transition(c, func(id, userID int64) (*models.Post, error) {
		return h.s.PublishNow(c.UserContext(), id, userID)
	})
}

func (h *PostHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, func(id, userID int64) (*models.Post, error) {
		return h.s.Cancel(c.UserContext(), id, userID)
	})
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.s.Remove(c.UserContext(), id, GetUserID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) Attempts(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return writeError(c, err)
	}
	attempts, err := h.s.Attempts(c.UserContext(), id, GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if attempts == nil {
		attempts = []*models.DeliveryAttempt{}
	}
	return c.JSON(attempts)
}

func (h *PostHandler) Stats(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return writeError(c, err)
	}
	raw, err := h.s.Stats(c.UserContext(), id, GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// ArmedTimers lists the caller's pending timers.
func (h *PostHandler) ArmedTimers(c *fiber.Ctx) error {
	timers, err := h.s.ArmedTimers(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(timers)
}
