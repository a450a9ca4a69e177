package repository

import (
	"context"
	"strings"

	"vjudge/internal/common/db"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

// JudgeCaseRepository persists per-test-case results.
type JudgeCaseRepository struct {
	db db.Database
}

func NewJudgeCaseRepository(database db.Database) *JudgeCaseRepository {
	return &JudgeCaseRepository{db: database}
}

// ReplaceForSubmission deletes any earlier case rows for the submission and
// inserts the new batch in one transaction, so a rejudge never leaves a mix
// of old and new rows.
func (r *JudgeCaseRepository) ReplaceForSubmission(ctx context.Context, sub *model.Submission, results []model.CaseResult) error {
	return r.db.Transaction(ctx, func(tx db.Transaction) error {
		_, err := tx.Exec(ctx,
			"DELETE FROM judge_case WHERE submission_id = ?", sub.SubmissionID)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "clear judge cases")
		}
		if len(results) == 0 {
			return nil
		}

		var sb strings.Builder
		sb.WriteString(`INSERT INTO judge_case
			(submission_id, problem_id, user_id, case_id, status, time_ms, memory_kb, score, input_data, output_data, user_output)
			VALUES `)
		args := make([]interface{}, 0, len(results)*11)
		for i, c := range results {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				sub.SubmissionID, sub.ProblemID, sub.UserID, c.CaseID,
				int(c.Status), c.TimeMs, c.MemoryKB, c.Score,
				c.InputName, c.OutputName, c.Output)
		}
		if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "insert judge cases")
		}
		return nil
	})
}

// ListForSubmission returns the persisted case rows ordered by case id.
func (r *JudgeCaseRepository) ListForSubmission(ctx context.Context, submissionID string) ([]model.JudgeCase, error) {
	rows, err := r.db.Query(ctx,
		`SELECT submission_id, problem_id, user_id, case_id, status, time_ms, memory_kb, score, input_data, output_data, user_output
		FROM judge_case WHERE submission_id = ? ORDER BY case_id ASC`,
		submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list judge cases")
	}
	defer rows.Close()

	var cases []model.JudgeCase
	for rows.Next() {
		var c model.JudgeCase
		if err := rows.Scan(&c.SubmissionID, &c.ProblemID, &c.UserID, &c.CaseID,
			&c.Status, &c.TimeMs, &c.MemoryKB, &c.Score,
			&c.InputData, &c.OutputData, &c.UserOutput); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan judge case")
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate judge cases")
	}
	return cases, nil
}
