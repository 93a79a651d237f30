package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/olababsmichael/cbt-exam-system/internal/middleware"
	"github.com/olababsmichael/cbt-exam-system/internal/model"
	"github.com/olababsmichael/cbt-exam-system/internal/response"
	"github.com/olababsmichael/cbt-exam-system/internal/service"
	"github.com/olababsmichael/cbt-exam-system/internal/validator"
)

// AttemptHandler handles the student attempt lifecycle endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Starts a new attempt and returns the shuffled question paper. The deadline
// is fixed at start and never extended.
func (h *AttemptHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.attemptService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": paper})
}

// RecordAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answer
// Saves or overwrites the answer for one question. Rejected once the attempt
// is submitted or past its deadline.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err = h.attemptService.RecordAnswer(c.Request.Context(), attemptID, claims.UserID, req.QuestionID, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptNotActive):
			response.Fail(c, http.StatusBadRequest, response.ErrExamNotActive)
		case errors.Is(err, service.ErrAttemptExpired):
			response.Fail(c, http.StatusBadRequest, response.ErrAttemptExpired)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Finalizes the attempt, grades it exactly once, and returns the score.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	score, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusBadRequest, response.ErrAlreadySubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"score": score})
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the caller's attempt history, newest first.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
