package handler

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ws "github.com/subgen/api/internal/websocket"
	"github.com/subgen/api/pkg/response"
)

// Routes bundles everything mounted on the app.
type Routes struct {
	Upload   *UploadHandler
	Download *DownloadHandler
	System   *SystemHandler
	Hub      *ws.Hub

	// UploadLimit guards POST /upload; nil disables it.
	UploadLimit fiber.Handler
	// Backlog is how many recent lines a new websocket client receives.
	Backlog int
}

// Register mounts all routes on app.
func Register(app *fiber.App, r Routes) {
	app.Get("/health", r.System.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	uploadChain := []fiber.Handler{r.Upload.Upload}
	if r.UploadLimit != nil {
		uploadChain = append([]fiber.Handler{r.UploadLimit}, uploadChain...)
	}
	app.Post("/upload", uploadChain...)
	app.Get("/download-subtitles/:name", r.Download.Download)

	app.Get("/system-messages", r.System.Messages)
	app.Get("/jobs", r.System.Jobs)
	app.Get("/jobs/:name", r.System.Job)

	if r.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/system-messages", websocket.New(func(c *websocket.Conn) {
			r.Hub.HandleConnection(c, r.Backlog)
		}))
	}
}

// ErrorHandler renders errors that escape handlers in the response envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		errCode = response.CodeValidationError
	case fiber.StatusTooManyRequests:
		errCode = response.CodeRateLimited
	}

	return response.Error(c, code, errCode, message, nil)
}
