package repository

import (
	"context"
	"encoding/json"
	"time"

	"vjudge/internal/common/cache"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

const (
	statusKeyPrefix = "judge:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache mirrors the live judging status of a submission in redis so
// the status endpoint does not hit MySQL on every poll.
type StatusCache struct {
	cache cache.Cache
}

func NewStatusCache(c cache.Cache) *StatusCache {
	return &StatusCache{cache: c}
}

// SubmissionStatus is the cached view served to pollers.
type SubmissionStatus struct {
	SubmissionID string       `json:"submission_id"`
	Status       model.Status `json:"status"`
	Score        int          `json:"score,omitempty"`
	TimeMs       int64        `json:"time_ms,omitempty"`
	MemoryKB     int64        `json:"memory_kb,omitempty"`
	ErrMsg       string       `json:"err_msg,omitempty"`
}

func (c *StatusCache) Set(ctx context.Context, status *SubmissionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "marshal submission status")
	}
	if err := c.cache.Set(ctx, statusKeyPrefix+status.SubmissionID, string(data), statusTTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "cache submission status")
	}
	return nil
}

// Get returns the cached status, or nil when the submission is not cached.
func (c *StatusCache) Get(ctx context.Context, submissionID string) (*SubmissionStatus, error) {
	raw, err := c.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "read submission status")
	}
	if raw == "" {
		return nil, nil
	}
	var status SubmissionStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "unmarshal submission status")
	}
	return &status, nil
}
