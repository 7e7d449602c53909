package handler

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/model"
	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/pkg/response"
)

const defaultMessageLimit = 50

type SystemHandler struct {
	service *service.SubtitleService
	ring    *logging.Ring
}

func NewSystemHandler(svc *service.SubtitleService, ring *logging.Ring) *SystemHandler {
	return &SystemHandler{
		service: svc,
		ring:    ring,
	}
}

// Messages handles GET /system-messages
func (h *SystemHandler) Messages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultMessageLimit)
	if limit < 1 {
		return response.ValidationError(c, "limit must be a positive integer", map[string]string{
			"limit": c.Query("limit"),
		})
	}

	messages := h.ring.Recent(limit)
	return response.OK(c, model.SystemMessagesResponse{
		Count:    len(messages),
		Messages: messages,
	})
}

// Job handles GET /jobs/:name
func (h *SystemHandler) Job(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return response.ValidationError(c, "File name is required", nil)
	}

	job, err := h.service.Status(name)
	if err != nil {
		return writeServiceError(c, err)
	}
	return response.OK(c, job)
}

// Jobs handles GET /jobs
func (h *SystemHandler) Jobs(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"jobs": h.service.Jobs()})
}

// Health handles GET /health
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status": "ok",
		"jobs":   len(h.service.Jobs()),
	})
}
