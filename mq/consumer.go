package mq

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"civic-governance-backend/model"
)

// RetryingHandler retries apply with capped exponential backoff before the
// message is handed back to the queue's own redelivery.
func RetryingHandler(apply Handler, attempts uint64, logger zerolog.Logger) Handler {
	return func(ctx context.Context, intent model.GrantIntent) error {
		backoff := retry.NewExponential(100 * time.Millisecond)
		backoff = retry.WithCappedDuration(2*time.Second, backoff)
		backoff = retry.WithMaxRetries(attempts, backoff)

		return retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := apply(ctx, intent); err != nil {
				logger.Warn().Err(err).Str("intent", intent.ID).Msg("apply grant failed, retrying")
				return retry.RetryableError(err)
			}
			return nil
		})
	}
}
