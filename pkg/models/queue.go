package models

// QueueItem is a question instantiated against a specific entity (or the
// null slot for singleton levels) with merge-field text resolved. Queue
// items are built per response and never persisted.
type QueueItem struct {
	QuestionID        string      `json:"question_id"`
	SectionID         string      `json:"section_id"`
	EntityPid         string      `json:"entity_pid,omitempty"`
	EntityDisplayName string      `json:"entity_display_name,omitempty"`
	RenderedText      string      `json:"rendered_text"`
	InputKind         string      `json:"input_kind"`
	Options           []string    `json:"options,omitempty"`
	AccessField       string      `json:"access_field,omitempty"`
	Flexibility       Flexibility `json:"flexibility"`
}

// SectionStatus is the progress state of one section.
type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionInProgress SectionStatus = "in_progress"
	SectionComplete   SectionStatus = "complete"
)

// SectionProgress carries per-section counters for one response.
type SectionProgress struct {
	SectionID string        `json:"section_id"`
	Name      string        `json:"name"`
	Total     int           `json:"total"`
	Answered  int           `json:"answered"`
	Status    SectionStatus `json:"status"`
}

// QuestionGroup is a run of consecutive queue items that may be asked in a
// single conversational turn.
type QuestionGroup struct {
	QuestionIDs []string `json:"question_ids"`
}

// QuestionQueueResponse is the engine's answer to GetQuestions and
// SubmitAnswer: the ordered queue plus progress and grouping hints.
type QuestionQueueResponse struct {
	Queue           []QueueItem       `json:"queue"`
	Sections        []SectionProgress `json:"sections"`
	CanAskTogether  []QuestionGroup   `json:"can_ask_together"`
	NextRecommended string            `json:"next_recommended"`
	StateVersion    int64             `json:"state_version"`
}
