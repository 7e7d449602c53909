package model

// Language is one of the fixed translation targets offered to clients.
type Language string

const (
	LanguageEnglish   Language = "English"
	LanguageSpanish   Language = "Spanish"
	LanguageUkrainian Language = "Ukrainian"
	LanguageFrench    Language = "French"
	LanguageGerman    Language = "German"
	LanguageRussian   Language = "Russian"
)

var ValidLanguages = []Language{
	LanguageEnglish, LanguageSpanish, LanguageUkrainian,
	LanguageFrench, LanguageGerman, LanguageRussian,
}

// Job state. Absent is implicit: a key with no record.
type JobState string

const (
	JobStateAbsent     JobState = "absent"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Decision is the tracker's answer to a submission for a key.
type Decision string

const (
	DecisionNewJob           Decision = "new_job"
	DecisionInProgress       Decision = "in_progress"
	DecisionReadyForDownload Decision = "ready_for_download"
	DecisionFailed           Decision = "failed"
)
