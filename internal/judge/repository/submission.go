package repository

import (
	"context"

	"vjudge/internal/common/db"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

// SubmissionRepository persists submissions and their judging progress.
type SubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *SubmissionRepository {
	return &SubmissionRepository{db: database}
}

func (r *SubmissionRepository) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	row := r.db.QueryRow(ctx,
		`SELECT submission_id, problem_id, user_id, language, source_code,
			status, judger, time_ms, memory_kb, score, rank_score, err_msg,
			is_remote, remote_oj, created_at
		FROM submission WHERE submission_id = ?`,
		submissionID)

	var s model.Submission
	err := row.Scan(&s.SubmissionID, &s.ProblemID, &s.UserID, &s.Language, &s.SourceCode,
		&s.Status, &s.Judger, &s.TimeMs, &s.MemoryKB, &s.Score, &s.RankScore, &s.ErrMsg,
		&s.IsRemote, &s.RemoteOj, &s.CreatedAt)
	if db.IsNoRows(err) {
		return nil, appErr.Newf(appErr.SubmissionNotFound, "submission %s", submissionID)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission")
	}
	return &s, nil
}

// UpdateStatus moves the submission to a new status, recording which server
// took it when judger is non-empty.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, submissionID string, status model.Status, judger string) error {
	var err error
	if judger != "" {
		_, err = r.db.Exec(ctx,
			"UPDATE submission SET status = ?, judger = ? WHERE submission_id = ?",
			int(status), judger, submissionID)
	} else {
		_, err = r.db.Exec(ctx,
			"UPDATE submission SET status = ? WHERE submission_id = ?",
			int(status), submissionID)
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission status")
	}
	return nil
}

// SaveOutcome writes the terminal verdict and aggregated resource usage.
func (r *SubmissionRepository) SaveOutcome(ctx context.Context, submissionID string, outcome *model.SubmissionOutcome) error {
	_, err := r.db.Exec(ctx,
		`UPDATE submission
		SET status = ?, time_ms = ?, memory_kb = ?, score = ?, rank_score = ?, err_msg = ?
		WHERE submission_id = ?`,
		int(outcome.Status), outcome.TimeMs, outcome.MemoryKB,
		outcome.Score, outcome.RankScore, outcome.ErrMsg, submissionID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save submission outcome")
	}
	return nil
}
