package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/subgen/api/internal/model"
	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/pkg/response"
)

const zipContentType = "application/zip"

type UploadHandler struct {
	service   *service.SubtitleService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.SubtitleService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /upload
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	needsTranslation, err := parseFormBool(c.FormValue("needs_translation"))
	if err != nil {
		return response.ValidationError(c, "needs_translation must be a boolean", map[string]string{
			"needs_translation": c.FormValue("needs_translation"),
		})
	}

	req := model.UploadRequest{
		FileName:         file.Filename,
		NeedsTranslation: needsTranslation,
		TargetLanguage:   model.Language(strings.TrimSpace(c.FormValue("target_language"))),
	}
	if err := h.validator.Struct(&req); err != nil {
		msg := "Validation failed"
		if req.NeedsTranslation && req.TargetLanguage == "" {
			msg = "Target language is required when translation is needed"
		}
		return response.ValidationError(c, msg, formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Submit(c.Context(), req.FileName, req.NeedsTranslation, req.TargetLanguage, f)
	if err != nil {
		return writeServiceError(c, err)
	}

	switch result.Decision {
	case model.DecisionNewJob:
		return response.Accepted(c, uploadResponse(result.Job, model.StatusProcessingStarted))
	case model.DecisionInProgress:
		return response.OK(c, uploadResponse(result.Job, model.StatusStillProcessing))
	case model.DecisionReadyForDownload:
		return response.Attachment(c, result.Archive.FileName, zipContentType, result.Archive.Data)
	default:
		return response.ServiceError(c, fmt.Sprintf("unexpected decision %q", result.Decision))
	}
}

func uploadResponse(job model.Job, status string) model.UploadResponse {
	return model.UploadResponse{
		FileName:          job.DisplayName,
		Key:               job.Key,
		TranslationActive: job.WantsTranslation,
		Language:          string(job.TargetLanguage),
		Status:            status,
		RunID:             job.RunID,
		CreatedAt:         job.CreatedAt,
	}
}

// parseFormBool accepts the usual form encodings of a checkbox. An absent
// field is false.
func parseFormBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return false, nil
	case "on", "yes", "y":
		return true, nil
	case "off", "no", "n":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}
