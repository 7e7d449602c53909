package model

import "time"

// UploadRequest holds the validated form fields of POST /upload
type UploadRequest struct {
	FileName         string   `validate:"required"`
	NeedsTranslation bool
	TargetLanguage   Language `validate:"required_if=NeedsTranslation true,omitempty,oneof=English Spanish Ukrainian French German Russian"`
}

// UploadResponse is returned for NewJob and InProgress decisions
type UploadResponse struct {
	FileName          string    `json:"filename"`
	Key               string    `json:"key"`
	TranslationActive bool      `json:"translation_active"`
	Language          string    `json:"language"`
	Status            string    `json:"status"`
	RunID             string    `json:"runId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Status messages returned to polling clients
const (
	StatusProcessingStarted = "processing started"
	StatusStillProcessing   = "still processing"
)

// SystemMessagesResponse is returned by GET /system-messages
type SystemMessagesResponse struct {
	Count    int      `json:"count"`
	Messages []string `json:"messages"`
}
