package dispatch

import (
	"context"

	"go.uber.org/zap"

	"vjudge/internal/judge/model"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
)

// ServerStore claims and releases capacity on the judge server table.
// ClaimLocked must run the whole pick-and-increment inside one transaction
// with the candidate rows locked, so two concurrent claims can never both
// take the last slot of a server.
type ServerStore interface {
	// ClaimLocked locks the servers whose URL is in urls and whose remote
	// flag matches isRemote, ordered by current load ascending, increments
	// the load of the first one with spare capacity and returns it. A nil
	// server with a nil error means every candidate is at capacity.
	ClaimLocked(ctx context.Context, urls []string, isRemote bool) (*model.JudgeServer, error)

	// Release decrements the load of the server at url, never below zero.
	Release(ctx context.Context, url string) error
}

// AccountStore claims and releases remote OJ accounts. Claims are
// optimistic: TryClaim only succeeds when the account is still free at
// update time.
type AccountStore interface {
	ListAvailable(ctx context.Context, oj string) ([]model.RemoteAccount, error)
	TryClaim(ctx context.Context, id int64) (bool, error)
	Release(ctx context.Context, id int64) error
}

// Allocator hands out judge servers and remote accounts under their
// capacity limits. Exhaustion is a normal outcome, reported as a nil result
// with a nil error; callers retry with backoff.
type Allocator struct {
	health   *HealthSource
	servers  ServerStore
	accounts AccountStore
}

func NewAllocator(health *HealthSource, servers ServerStore, accounts AccountStore) *Allocator {
	return &Allocator{health: health, servers: servers, accounts: accounts}
}

// ChooseJudgeServer claims one slot on the least loaded healthy server.
func (a *Allocator) ChooseJudgeServer(ctx context.Context, isRemote bool) (*model.JudgeServer, error) {
	urls, err := a.health.Healthy(ctx)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, nil
	}
	server, err := a.servers.ClaimLocked(ctx, urls, isRemote)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DispatchError, "claim judge server")
	}
	if server != nil {
		logger.Debug(ctx, "claimed judge server",
			zap.String("url", server.URL), zap.Int("task_number", server.TaskNumber))
	}
	return server, nil
}

// ReleaseJudgeServer gives one slot back. It is called on every exit path
// of a judging run, including failures.
func (a *Allocator) ReleaseJudgeServer(ctx context.Context, url string) error {
	if err := a.servers.Release(ctx, url); err != nil {
		return appErr.Wrapf(err, appErr.ReleaseFailed, "release judge server %s", url)
	}
	return nil
}

// ChooseRemoteAccount claims a free account for the given remote OJ. The
// list of candidates is read without locks; each candidate is then claimed
// with a conditional update, and the first account still free at update
// time wins. Losing every race is reported as exhaustion, not an error.
func (a *Allocator) ChooseRemoteAccount(ctx context.Context, oj string) (*model.RemoteAccount, error) {
	oj = model.NormalizeRemoteOj(oj)
	candidates, err := a.accounts.ListAvailable(ctx, oj)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DispatchError, "list %s accounts", oj)
	}
	for i := range candidates {
		ok, err := a.accounts.TryClaim(ctx, candidates[i].ID)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DispatchError, "claim %s account", oj)
		}
		if ok {
			acc := candidates[i]
			acc.Status = false
			return &acc, nil
		}
	}
	return nil, nil
}

// ReleaseRemoteAccount marks the account free again.
func (a *Allocator) ReleaseRemoteAccount(ctx context.Context, id int64) error {
	if err := a.accounts.Release(ctx, id); err != nil {
		return appErr.Wrapf(err, appErr.ReleaseFailed, "release remote account %d", id)
	}
	return nil
}
