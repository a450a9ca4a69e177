package repository

import (
	"context"
	"strings"

	"vjudge/internal/common/db"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

// JudgeServerRepository backs server allocation with the judge_server table.
type JudgeServerRepository struct {
	db db.Database
}

func NewJudgeServerRepository(database db.Database) *JudgeServerRepository {
	return &JudgeServerRepository{db: database}
}

// ClaimLocked picks the least loaded server among urls and takes one slot on
// it. The candidate rows are locked for the duration of the transaction, so
// concurrent claims serialize and the capacity limit holds.
func (r *JudgeServerRepository) ClaimLocked(ctx context.Context, urls []string, isRemote bool) (*model.JudgeServer, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	var claimed *model.JudgeServer
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		placeholders := strings.Repeat("?,", len(urls))
		placeholders = placeholders[:len(placeholders)-1]
		query := `SELECT id, name, url, task_number, max_task_number, is_remote
			FROM judge_server
			WHERE url IN (` + placeholders + `) AND is_remote = ?
			ORDER BY task_number ASC
			FOR UPDATE`

		args := make([]interface{}, 0, len(urls)+1)
		for _, u := range urls {
			args = append(args, u)
		}
		args = append(args, isRemote)

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "lock judge servers")
		}
		defer rows.Close()

		var servers []model.JudgeServer
		for rows.Next() {
			var s model.JudgeServer
			if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.TaskNumber, &s.MaxTaskNumber, &s.IsRemote); err != nil {
				return appErr.Wrapf(err, appErr.DatabaseError, "scan judge server")
			}
			servers = append(servers, s)
		}
		if err := rows.Err(); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "iterate judge servers")
		}

		for i := range servers {
			if !servers[i].HasCapacity() {
				continue
			}
			_, err := tx.Exec(ctx,
				"UPDATE judge_server SET task_number = task_number + 1 WHERE id = ?",
				servers[i].ID)
			if err != nil {
				return appErr.Wrapf(err, appErr.DatabaseError, "increment server load")
			}
			s := servers[i]
			s.TaskNumber++
			claimed = &s
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Release gives one slot back on the server at url.
func (r *JudgeServerRepository) Release(ctx context.Context, url string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE judge_server SET task_number = task_number - 1 WHERE url = ? AND task_number > 0",
		url)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "decrement server load")
	}
	return nil
}

// Upsert registers this server's row at startup, refreshing its capacity.
func (r *JudgeServerRepository) Upsert(ctx context.Context, server *model.JudgeServer) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO judge_server (name, url, task_number, max_task_number, is_remote)
		VALUES (?, ?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), max_task_number = VALUES(max_task_number)`,
		server.Name, server.URL, server.MaxTaskNumber, server.IsRemote)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "upsert judge server")
	}
	return nil
}
