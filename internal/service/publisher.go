package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/cache"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/observability"
	"murmur/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Promotion triggers, used as metric labels and in published events.
const (
	TriggerSweep  = "sweep"
	TriggerManual = "manual"
)

// DefaultBatchSize caps how many due records one sweep promotes.
const DefaultBatchSize = 100

// SweepResult summarises one PublishDue run.
type SweepResult struct {
	Due       int           `json:"due"`
	Published int           `json:"published"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Deferred  int           `json:"deferred"`
	Duration  time.Duration `json:"duration"`
}

// PublisherOptions tunes a Publisher. Zero values pick the defaults.
type PublisherOptions struct {
	BatchSize int
	Now       func() time.Time
}

// Publisher promotes due scheduled posts into live posts.
type Publisher struct {
	store     repository.ScheduledPostRepository
	cache     *cache.Cache
	notifier  *notifications.Notifier
	batchSize int
	now       func() time.Time
}

// NewPublisher returns a Publisher. c and n may be nil.
func NewPublisher(store repository.ScheduledPostRepository, c *cache.Cache, n *notifications.Notifier, opts PublisherOptions) *Publisher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		store:     store,
		cache:     c,
		notifier:  n,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// PublishOne promotes the scheduled post id if it is still pending. A record
// that is no longer pending yields repository.ErrNotPending and changes nothing.
func (p *Publisher) PublishOne(ctx context.Context, id uint, trigger string) (*models.Post, error) {
	sp, err := p.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sp.IsPending() {
		return nil, repository.ErrNotPending
	}

	post, err := p.store.Promote(ctx, id, p.now())
	if err != nil {
		if !errors.Is(err, repository.ErrNotPending) {
			observability.ScheduledPostFailures.WithLabelValues(trigger).Inc()
		}
		return nil, err
	}

	p.afterPublish(ctx, sp, post, trigger)
	return post, nil
}

// afterPublish runs the post-commit side effects. None of them can undo or
// fail the promotion.
func (p *Publisher) afterPublish(ctx context.Context, sp *models.ScheduledPost, post *models.Post, trigger string) {
	observability.ScheduledPostsPublished.WithLabelValues(trigger).Inc()
	p.cache.InvalidateUserPosts(ctx, sp.UserID)

	err := p.notifier.PublishEvent(ctx, sp.UserID, notifications.Event{
		Type:            notifications.EventScheduledPostPublished,
		ScheduledPostID: sp.ID,
		PostID:          post.ID,
		Trigger:         trigger,
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish notification",
			slog.Uint64("scheduled_post_id", uint64(sp.ID)),
			slog.String("error", err.Error()),
		)
	}

	middleware.Logger.InfoContext(ctx, "scheduled post published",
		slog.Uint64("scheduled_post_id", uint64(sp.ID)),
		slog.Uint64("post_id", uint64(post.ID)),
		slog.Uint64("user_id", uint64(sp.UserID)),
		slog.String("trigger", trigger),
	)
}

// PublishDue runs one sweep over the records due now. Per-item failures are
// logged and counted; they never stop the batch. An error is returned only
// when the due scan itself fails. Items left when ctx ends stay pending for
// the next sweep.
func (p *Publisher) PublishDue(ctx context.Context) (res SweepResult, err error) {
	start := time.Now()
	span, ctx := observability.NewSpan(ctx, "scheduler.sweep")
	defer span.End()

	observability.SweepsInFlight.Inc()
	defer observability.SweepsInFlight.Dec()

	defer func() {
		res.Duration = time.Since(start)
		observability.SweepDuration.Observe(res.Duration.Seconds())
	}()

	ids, err := p.store.ListDue(ctx, p.now(), p.batchSize)
	if err != nil {
		span.SetError(err)
		middleware.Logger.ErrorContext(ctx, "scheduled post sweep: due scan failed", slog.String("error", err.Error()))
		return res, err
	}
	res.Due = len(ids)
	observability.SweepDue.Set(float64(res.Due))

	for i, id := range ids {
		if ctx.Err() != nil {
			res.Deferred += len(ids) - i
			break
		}

		_, pubErr := p.PublishOne(ctx, id, TriggerSweep)
		switch {
		case pubErr == nil:
			res.Published++
		case errors.Is(pubErr, repository.ErrNotPending):
			res.Skipped++
			observability.ScheduledPostsSkipped.Inc()
		case errors.Is(pubErr, context.Canceled), errors.Is(pubErr, context.DeadlineExceeded):
			res.Deferred++
		default:
			res.Failed++
			middleware.Logger.ErrorContext(ctx, "failed to publish scheduled post",
				slog.Uint64("scheduled_post_id", uint64(id)),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	span.AddAttributes(
		attribute.Int("sweep.due", res.Due),
		attribute.Int("sweep.published", res.Published),
		attribute.Int("sweep.skipped", res.Skipped),
		attribute.Int("sweep.failed", res.Failed),
		attribute.Int("sweep.deferred", res.Deferred),
	)
	if res.Due > 0 {
		middleware.Logger.InfoContext(ctx, "scheduled post sweep finished",
			slog.Int("due", res.Due),
			slog.Int("published", res.Published),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
			slog.Int("deferred", res.Deferred),
		)
	}
	return res, nil
}
