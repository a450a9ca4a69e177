package dispatch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"vjudge/internal/common/cache"
	appErr "vjudge/pkg/errors"
	"vjudge/pkg/utils/logger"
)

const (
	heartbeatKeyPrefix = "judge:server:alive:"
	// HeartbeatTTL bounds how stale a heartbeat may be before the server is
	// considered down. Servers refresh well inside this window.
	HeartbeatTTL = 15 * time.Second
)

// HealthSource reports which judge servers are currently alive. Liveness is
// tracked through expiring heartbeat keys so that a crashed server drops out
// of allocation without any explicit deregistration.
type HealthSource struct {
	cache cache.Cache
}

func NewHealthSource(c cache.Cache) *HealthSource {
	return &HealthSource{cache: c}
}

// Register refreshes the heartbeat for one server URL.
func (h *HealthSource) Register(ctx context.Context, serverURL string) error {
	key := heartbeatKeyPrefix + serverURL
	if err := h.cache.Set(ctx, key, "1", HeartbeatTTL); err != nil {
		return appErr.Wrapf(err, appErr.HealthSourceError, "register heartbeat for %s", serverURL)
	}
	return nil
}

// Healthy returns the URLs of all servers with a live heartbeat.
func (h *HealthSource) Healthy(ctx context.Context) ([]string, error) {
	keys, err := h.cache.Keys(ctx, heartbeatKeyPrefix+"*")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.HealthSourceError, "list heartbeats")
	}
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		urls = append(urls, strings.TrimPrefix(k, heartbeatKeyPrefix))
	}
	return urls, nil
}

// HeartbeatLoop refreshes the heartbeat for serverURL until ctx is done.
func (h *HealthSource) HeartbeatLoop(ctx context.Context, serverURL string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := h.Register(ctx, serverURL); err != nil {
			logger.Warn(ctx, "heartbeat refresh failed",
				zap.String("server_url", serverURL), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
