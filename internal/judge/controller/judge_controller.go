// Package controller exposes the judge server's HTTP surface: submission
// status polling and liveness.
package controller

import (
	"context"

	"github.com/gin-gonic/gin"

	"vjudge/internal/judge/model"
	"vjudge/internal/judge/repository"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/response"
)

// StatusSource reads cached live statuses.
type StatusSource interface {
	Get(ctx context.Context, submissionID string) (*repository.SubmissionStatus, error)
}

// SubmissionSource is the database fallback for cold status reads.
type SubmissionSource interface {
	GetByID(ctx context.Context, submissionID string) (*model.Submission, error)
}

// JudgeController serves status queries from the cache, falling back to the
// database once the cache entry has expired.
type JudgeController struct {
	status      StatusSource
	submissions SubmissionSource
}

func NewJudgeController(status StatusSource, submissions SubmissionSource) *JudgeController {
	return &JudgeController{status: status, submissions: submissions}
}

// RegisterRoutes mounts the controller on a gin engine.
func (jc *JudgeController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", jc.Health)
	api := r.Group("/api/judge")
	{
		api.GET("/status/:id", jc.GetStatus)
	}
}

// GetStatus handles GET /api/judge/status/:id.
func (jc *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "submission id is required")
		return
	}
	ctx := c.Request.Context()

	status, err := jc.status.Get(ctx, submissionID)
	if err == nil && status != nil {
		response.Success(c, status)
		return
	}

	sub, err := jc.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if appErr.GetCode(err) == appErr.SubmissionNotFound {
			response.Error(c, err)
			return
		}
		response.Error(c, appErr.Wrapf(err, appErr.JudgeSystemError, "load submission status"))
		return
	}
	response.Success(c, &repository.SubmissionStatus{
		SubmissionID: sub.SubmissionID,
		Status:       sub.Status,
		Score:        sub.Score,
		TimeMs:       sub.TimeMs,
		MemoryKB:     sub.MemoryKB,
		ErrMsg:       sub.ErrMsg,
	})
}

// Health handles GET /healthz.
func (jc *JudgeController) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
