package repository

import (
	"context"

	"vjudge/internal/common/db"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

// ProblemRepository loads the judging-relevant view of a problem.
type ProblemRepository struct {
	db db.Database
}

func NewProblemRepository(database db.Database) *ProblemRepository {
	return &ProblemRepository{db: database}
}

func (r *ProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, display_id, judge_mode, difficulty, case_version,
			time_limit_ms, memory_limit_mb, spj_code, spj_language
		FROM problem WHERE id = ?`,
		problemID)

	var p model.Problem
	var mode string
	err := row.Scan(&p.ID, &p.DisplayID, &mode, &p.Difficulty, &p.CaseVersion,
		&p.TimeLimitMs, &p.MemoryLimitMB, &p.SpjCode, &p.SpjLanguage)
	if db.IsNoRows(err) {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d", problemID)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem")
	}
	judgeMode, ok := model.ParseJudgeMode(mode)
	if !ok {
		return nil, appErr.Newf(appErr.JudgeModeUnknown, "problem %d has judge mode %q", problemID, mode)
	}
	p.JudgeMode = judgeMode

	cases, err := r.listCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	p.Cases = cases
	return &p, nil
}

func (r *ProblemRepository) listCases(ctx context.Context, problemID int64) ([]model.ProblemCase, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, input_name, output_name, score FROM problem_case WHERE problem_id = ? ORDER BY id ASC",
		problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list problem cases")
	}
	defer rows.Close()

	var cases []model.ProblemCase
	for rows.Next() {
		var c model.ProblemCase
		if err := rows.Scan(&c.CaseID, &c.InputName, &c.OutputName, &c.Score); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan problem case")
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate problem cases")
	}
	return cases, nil
}
