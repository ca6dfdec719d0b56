package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

type UserHandler struct {
	s          service.UserService
	cookieName string
}

func NewUserHandler(service service.UserService, cookieName string) *UserHandler {
	return &UserHandler{s: service, cookieName: cookieName}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userInfo, err := h.s.GetUserInfo(c.UserContext(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(userInfo)
}

// DeleteUser removes the account with all of its posts and ends the session.
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	if err := h.s.RemoveUser(c.UserContext(), GetUserID(c)); err != nil {
		return writeError(c, err)
	}
	c.Cookie(&fiber.Cookie{Name: h.cookieName, Value: "", Path: "/", MaxAge: -1})
	return c.SendStatus(fiber.StatusNoContent)
}
