package api

import (
	"github.com/gofiber/fiber/v2"

	config "github.com/maheshrc27/linkedin-scheduler/configs"
	"github.com/maheshrc27/linkedin-scheduler/internal/api/handlers"
	"github.com/maheshrc27/linkedin-scheduler/internal/api/middleware"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

type Services struct {
	Auth  service.AuthService
	Users service.UserService
	Posts service.PostService
}

func RegisterRoutes(app *fiber.App, cfg config.Config, s Services) {
	auth := handlers.NewAuthHandler(cfg, s.Auth)
	app.Get("/auth/linkedin", auth.Login)
	app.Get("/auth/linkedin/callback", auth.LoginCallbackHandler)
	app.Get("/logout", auth.Logout)

	api := app.Group("/api")
	api.Use(middleware.NewAuthMiddleware(cfg).AuthMiddleware())

	user := handlers.NewUserHandler(s.Users, cfg.CookieName)
	api.Get("/user", user.GetUserInfo)
	api.Delete("/user", user.DeleteUser)

	post := handlers.NewPostHandler(s.Posts, cfg.MaxUploadBytes)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.GetPost)
	api.Post("/posts/:id/reschedule", post.Reschedule)
	api.Post("/posts/:id/publish", post.PublishNow)
	api.Post("/posts/:id/cancel", post.Cancel)
	api.Delete("/posts/:id", post.RemovePost)
	api.Get("/posts/:id/attempts", post.Attempts)
	api.Get("/posts/:id/stats", post.Stats)

	api.Get("/scheduler/jobs", post.ArmedTimers)
}
