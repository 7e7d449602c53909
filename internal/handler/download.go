package handler

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/pkg/response"
)

type DownloadHandler struct {
	service *service.SubtitleService
}

func NewDownloadHandler(svc *service.SubtitleService) *DownloadHandler {
	return &DownloadHandler{service: svc}
}

// Download handles GET /download-subtitles/:name
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return response.ValidationError(c, "File name is required", nil)
	}

	archive, err := h.service.Download(name)
	if errors.Is(err, service.ErrStillProcessing) {
		return response.NotFound(c, "No completed job for this file, it might still be processing")
	}
	if err != nil {
		return writeServiceError(c, err)
	}

	return response.Attachment(c, archive.FileName, zipContentType, archive.Data)
}
