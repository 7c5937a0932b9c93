package service

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
	"civic-governance-backend/repository"
)

// GrantRelay moves committed grant intents from the outbox to the registry
// transport.
type GrantRelay struct {
	repo       repository.LedgerRepository
	publisher  GrantPublisher
	logger     zerolog.Logger
	batchSize  int
	maxRetries int
	interval   time.Duration
	notify     chan struct{}
}

// NewGrantRelay 创建授权发件箱转发器
func NewGrantRelay(repo repository.LedgerRepository, publisher GrantPublisher, logger zerolog.Logger, interval time.Duration, maxRetries int) *GrantRelay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &GrantRelay{
		repo:       repo,
		publisher:  publisher,
		logger:     logger.With().Str("component", "grant_relay").Logger(),
		batchSize:  100,
		maxRetries: maxRetries,
		interval:   interval,
		notify:     make(chan struct{}, 1),
	}
}

// Notify wakes the relay loop without blocking.
func (r *GrantRelay) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// RunOnce publishes one batch of pending intents and returns how many were
// handed over. Intents that keep failing are marked failed.
func (r *GrantRelay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListGrantIntents(ctx, model.GrantPending, r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list pending grants")
	}

	var result *multierror.Error
	published := 0
	for i := range pending {
		intent := pending[i]
		lastErr := ""
		if err := r.publisher.PublishGrant(ctx, intent); err != nil {
			intent.RetryCount++
			lastErr = err.Error()
			if intent.RetryCount >= r.maxRetries {
				intent.Status = model.GrantFailed
				grantRelayed.WithLabelValues(string(model.GrantFailed)).Inc()
				r.logger.Error().Err(err).Str("intent", intent.ID).Str("account", intent.Account).Msg("grant intent abandoned")
			} else {
				grantRelayed.WithLabelValues("retry").Inc()
			}
			result = multierror.Append(result, errors.Wrapf(err, "publish grant %s", intent.ID))
		} else {
			intent.Status = model.GrantPublished
			published++
			grantRelayed.WithLabelValues(string(model.GrantPublished)).Inc()
		}

		if err := r.repo.UpdateGrantIntent(ctx, &intent, lastErr); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "update grant %s", intent.ID))
		}
	}
	if published > 0 {
		r.logger.Info().Int("published", published).Msg("grant intents relayed")
	}
	return published, result.ErrorOrNil()
}

// Start runs the relay until ctx is done, on a ticker and whenever notified.
func (r *GrantRelay) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-r.notify:
			}
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("grant relay pass incomplete")
			}
		}
	}()
}
