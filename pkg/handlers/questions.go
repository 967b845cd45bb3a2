package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/services"
)

// QuestionAPI is the service surface the handler dispatches to.
type QuestionAPI interface {
	GetQuestions(ctx context.Context, proposalPid string) (*models.QuestionQueueResponse, error)
	SubmitAnswer(ctx context.Context, proposalPid string, in services.AnswerInput) (*models.QuestionQueueResponse, error)
	GetState(ctx context.Context, proposalPid string) (*models.LoanState, error)
}

// QuestionsHandler serves the question queue and answer submission endpoints.
type QuestionsHandler struct {
	svc    QuestionAPI
	logger *zap.Logger
}

// NewQuestionsHandler creates a QuestionsHandler.
func NewQuestionsHandler(svc QuestionAPI, logger *zap.Logger) *QuestionsHandler {
	return &QuestionsHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the question routes on the given mux.
func (h *QuestionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/proposals/{pid}/questions", h.GetQuestions)
	mux.HandleFunc("POST /api/proposals/{pid}/answers", h.SubmitAnswer)
	mux.HandleFunc("GET /api/proposals/{pid}/state", h.GetState)
}

// GetQuestions handles GET /api/proposals/{pid}/questions.
func (h *QuestionsHandler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")

	resp, err := h.svc.GetQuestions(r.Context(), pid)
	if err != nil {
		h.writeError(w, pid, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode questions response", zap.Error(err))
	}
}

// submitAnswerRequest is the POST /answers body.
type submitAnswerRequest struct {
	QuestionID string          `json:"question_id"`
	EntityPid  string          `json:"entity_pid,omitempty"`
	Answer     json.RawMessage `json:"answer"`
	RawInput   string          `json:"raw_input,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// SubmitAnswer handles POST /api/proposals/{pid}/answers.
func (h *QuestionsHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}
	var req submitAnswerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := h.svc.SubmitAnswer(r.Context(), pid, services.AnswerInput{
		QuestionID: req.QuestionID,
		EntityPid:  req.EntityPid,
		Answer:     req.Answer,
		RawInput:   req.RawInput,
		Confidence: req.Confidence,
	})
	if err != nil {
		h.writeError(w, pid, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode answer response", zap.Error(err))
	}
}

// loanStateResponse is the debugging snapshot shape.
type loanStateResponse struct {
	ProposalPid string                  `json:"proposal_pid"`
	Version     int64                   `json:"version"`
	LoadedAt    time.Time               `json:"loaded_at"`
	Fields      map[string]models.Value `json:"fields"`
	Entities    models.LoanEntities     `json:"entities"`
	Answered    []string                `json:"answered"`
}

// GetState handles GET /api/proposals/{pid}/state.
func (h *QuestionsHandler) GetState(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")

	state, err := h.svc.GetState(r.Context(), pid)
	if err != nil {
		h.writeError(w, pid, err)
		return
	}
	resp := loanStateResponse{
		ProposalPid: state.ProposalPid,
		Version:     state.Version,
		LoadedAt:    state.LoadedAt,
		Fields:      state.Fields,
		Entities:    state.Entities,
		Answered:    state.AnsweredList(),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode state response", zap.Error(err))
	}
}

func (h *QuestionsHandler) writeError(w http.ResponseWriter, pid string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("proposal_pid", pid),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
