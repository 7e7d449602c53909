package model

import "time"

// Job is the lifecycle record of one sanitized storage key
type Job struct {
	Key              string     `json:"key"`
	DisplayName      string     `json:"displayName"`
	State            JobState   `json:"state"`
	WantsTranslation bool       `json:"wantsTranslation"`
	TargetLanguage   Language   `json:"targetLanguage,omitempty"`
	RunID            string     `json:"runId"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has left Processing.
func (j Job) Terminal() bool {
	return j.State == JobStateCompleted || j.State == JobStateFailed
}
