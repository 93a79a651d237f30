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

// ExamHandler handles exam authoring endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// CreateExam godoc
// POST /api/v1/admin/exams
// Creates a new exam. Exams are immutable once created; only questions can
// be appended afterwards.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       claims.UserID,
	}

	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// AddQuestion godoc
// POST /api/v1/admin/exams/:exam_id/questions
// Appends a question to an exam. MCQ questions must carry choices with at
// most one marked correct.
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), examID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrMultipleCorrectChoices):
			response.Fail(c, http.StatusBadRequest, response.ErrMultipleCorrect)
		case errors.Is(err, service.ErrChoicesRequired):
			response.Fail(c, http.StatusBadRequest, response.ErrChoicesRequired)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// GetExam godoc
// GET /api/v1/admin/exams/:exam_id
// Returns an exam with its full question set, correct flags included.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	detail, err := h.examService.GetWithQuestions(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": detail})
}

// ListExams godoc
// GET /api/v1/exams
// Lists all exams. Visible to any authenticated user so students can pick
// an exam to start.
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}
