package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/learning"
	"github.com/vietgrow/askgate/internal/types"
)

type askRequest struct {
	Question string `json:"question"`
	UID      string `json:"uid"`
}

type feedbackRequest struct {
	QuestionID string       `json:"question_id"`
	Question   string       `json:"question"`
	Rating     types.Rating `json:"rating"`
	Note       string       `json:"note"`
}

type meRequest struct {
	UID string `json:"uid"`
}

type registerRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// errorResponse is the body of every non-2xx reply
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	// Blank questions never consume quota
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "question is empty"})
		return
	}

	ctx := c.Request.Context()
	id := s.deps.Identities.Identify(ctx, clientIP(c.Request), req.UID)

	if err := s.deps.Admission.Check(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.deps.Answers.Answer(ctx, req.Question, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("X-Quota-Remaining", strconv.Itoa(s.deps.Admission.Remaining(id)))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTopics(c *gin.Context) {
	if s.deps.Topics == nil {
		c.JSON(http.StatusOK, gin.H{"topics": []*types.Topic{}})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	topics, err := s.deps.Topics.Top(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if topics == nil {
		topics = []*types.Topic{}
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (s *Server) handleFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	saved, err := s.deps.Feedback.Record(c.Request.Context(), types.Feedback{
		QuestionID: req.QuestionID,
		Question:   req.Question,
		Rating:     req.Rating,
		Note:       req.Note,
		IP:         clientIP(c.Request),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": saved.ID})
}

func (s *Server) handleLearningLatest(c *gin.Context) {
	if s.deps.Learning == nil {
		c.JSON(http.StatusOK, gin.H{"summary": nil})
		return
	}

	latest, err := s.deps.Learning.Latest(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if latest == nil {
		c.JSON(http.StatusOK, gin.H{"summary": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": latest.Summary, "created_at": latest.CreatedAt})
}

func (s *Server) handleMe(c *gin.Context) {
	var req meRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UID) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "uid is required"})
		return
	}

	user := s.deps.Identities.Resolve(c.Request.Context(), req.UID)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	id := types.Identity{IP: clientIP(c.Request), User: user}
	c.JSON(http.StatusOK, gin.H{"user": user, "remaining": s.deps.Admission.Remaining(id)})
}

// handleRegister creates the user row that later requests carrying the
// same uid are charged against. Registering again keeps the usage so far.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "uid is required"})
		return
	}

	user, err := s.deps.Identities.Register(c.Request.Context(), req.UID, req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	id := types.Identity{IP: clientIP(c.Request), User: user}
	c.JSON(http.StatusOK, gin.H{"user": user, "remaining": s.deps.Admission.Remaining(id)})
}

func (s *Server) handleCronTopics(c *gin.Context) {
	if s.deps.Topics == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	}

	created, err := s.deps.Topics.Run(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "topics built", "created": len(created)})
}

func (s *Server) handleCronLearn(c *gin.Context) {
	if s.deps.Learning == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	}

	summary, err := s.deps.Learning.Run(c.Request.Context())
	if errors.Is(err, learning.ErrNothingToLearn) {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to learn this week"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OK", "summary": summary.Summary})
}

// fail maps an error to its status code
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, errorResponse{
			Error: "limit_exceeded",
			Message: fmt.Sprintf("You have used your %d free questions for today. "+
				"Please sign in or come back tomorrow.", s.cfg.DailyLimit),
		})
	case errors.Is(err, types.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
	default:
		s.log.Error("request failed",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}
