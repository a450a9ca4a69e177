package repository

import (
	"context"

	"vjudge/internal/common/db"
	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
)

// RemoteAccountRepository backs remote account allocation. Claims are
// optimistic conditional updates rather than row locks, since accounts for
// one OJ are interchangeable and losers just move to the next candidate.
type RemoteAccountRepository struct {
	db db.Database
}

func NewRemoteAccountRepository(database db.Database) *RemoteAccountRepository {
	return &RemoteAccountRepository{db: database}
}

// ListAvailable returns the currently free accounts for oj. The snapshot may
// be stale by the time a claim is attempted; TryClaim handles that.
func (r *RemoteAccountRepository) ListAvailable(ctx context.Context, oj string) ([]model.RemoteAccount, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, oj, username, password, status, version FROM remote_judge_account WHERE oj = ? AND status = 1",
		oj)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list remote accounts")
	}
	defer rows.Close()

	var accounts []model.RemoteAccount
	for rows.Next() {
		var a model.RemoteAccount
		if err := rows.Scan(&a.ID, &a.Oj, &a.Username, &a.Password, &a.Status, &a.Version); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan remote account")
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate remote accounts")
	}
	return accounts, nil
}

// TryClaim marks the account busy if it is still free. The WHERE clause on
// status makes the update a compare-and-swap; zero rows affected means
// someone else took it first.
func (r *RemoteAccountRepository) TryClaim(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.Exec(ctx,
		"UPDATE remote_judge_account SET status = 0, version = version + 1 WHERE id = ? AND status = 1",
		id)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "claim remote account")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "claim remote account")
	}
	return affected > 0, nil
}

// Release marks the account free again.
func (r *RemoteAccountRepository) Release(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		"UPDATE remote_judge_account SET status = 1 WHERE id = ?",
		id)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "release remote account")
	}
	return nil
}
