package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robjohncolson/statrelay/internal/gateway"
	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
	"github.com/robjohncolson/statrelay/pkg/response"
)

// maxBatchSize caps one batch submission so a single request cannot monopolise
// the write path.
const maxBatchSize = 50

// AnswerHandler exposes peer-answer reads and answer submission.
type AnswerHandler struct {
	gateway *gateway.Gateway
}

// NewAnswerHandler constructs an answer handler.
func NewAnswerHandler(gw *gateway.Gateway) *AnswerHandler {
	return &AnswerHandler{gateway: gw}
}

// ListByQuestion returns every peer answer for a question, projected for the
// caller's role.
func (h *AnswerHandler) ListByQuestion(c *gin.Context) {
	answers, err := h.gateway.PeerAnswers(requestContext(c), callerIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, answers)
}

// Consensus returns the answer-value distribution for a question.
func (h *AnswerHandler) Consensus(c *gin.Context) {
	report, err := h.gateway.Consensus(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

type submitAnswerRequest struct {
	AttemptNumber int    `json:"attempt_number" validate:"omitempty,min=1"`
	Value         string `json:"value" validate:"required,max=16"`
	Reasoning     string `json:"reasoning,omitempty"`
}

// Submit records one answer attempt for the calling profile. The question is
// named by the route.
func (h *AnswerHandler) Submit(c *gin.Context) {
	var body submitAnswerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	answer, err := h.gateway.SubmitAnswer(requestContext(c), callerIdentity(c), gateway.SubmitAnswerInput{
		QuestionID:    c.Param("id"),
		AttemptNumber: body.AttemptNumber,
		Value:         body.Value,
		Reasoning:     body.Reasoning,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, answer)
}

// batchRequest deliberately skips per-item struct validation: items fail
// independently inside the gateway so one bad answer never rejects the batch.
type batchRequest struct {
	Answers []gateway.SubmitAnswerInput `json:"answers" validate:"required,min=1"`
}

// SubmitBatch records a set of answers, reporting per-item outcomes.
func (h *AnswerHandler) SubmitBatch(c *gin.Context) {
	var body batchRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if len(body.Answers) > maxBatchSize {
		response.Error(c, appErrors.NewValidation("batch too large"))
		return
	}

	results := h.gateway.SubmitAnswerBatch(requestContext(c), callerIdentity(c), body.Answers)
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
