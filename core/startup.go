package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

// probe pings the bridge until it answers or attempts run out.
func probe(ctx context.Context, pinger Pinger, attempts int, interval time.Duration, logger pslog.Logger) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return pinger.Ping(ctx)
	}, policy, func(err error, next time.Duration) {
		logger.Trace("startup bridge ping failed", "attempt", attempt, "retry_in", next, "err", err)
	})
	if err == nil {
		logger.Debug("startup bridge ready", "attempt", attempt)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Warn("startup bridge unavailable", "attempts", attempt, "err", err)
	return schema.ErrBridgeUnavailable
}
