package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		// QueryNotifications returns the matching notifications, newest first.
		QueryNotifications(ctx context.Context, filter Filter) ([]Notification, error)
		UpdateNotification(ctx context.Context, n Notification) (Notification, error)
	}

	OutboxRepository interface {
		// EnqueueIntents assigns IDs to intents and persists them.
		EnqueueIntents(ctx context.Context, intents ...Intent) ([]Intent, error)
		GetIntent(ctx context.Context, id string) (Intent, error)
		// QueryDueIntents returns up to limit pending intents due at now, oldest first.
		QueryDueIntents(ctx context.Context, now time.Time, limit int) ([]Intent, error)
		QueryIntents(ctx context.Context, filter IntentFilter) ([]Intent, error)
		UpdateIntent(ctx context.Context, it Intent) (Intent, error)
	}

	// Enqueuer accepts intents inside the caller's transaction.
	// Wake must be called once that transaction has committed.
	Enqueuer interface {
		Enqueue(ctx context.Context, intents ...Intent) error
		Wake()
	}
)

// Dispatcher delivers outbox intents: it records the Notification then sends the email,
// retrying failed emails with exponential backoff.
type Dispatcher struct {
	outbox  OutboxRepository
	repo    Repository
	tx      core.Transactor
	mailSvc core.EmailService
	logger  core.Logger
	conf    core.OutboxConfig
	wake    chan struct{}
}

var _ Enqueuer = (*Dispatcher)(nil)

func NewDispatcher(
	outbox OutboxRepository,
	repo Repository,
	tx core.Transactor,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Dispatcher {
	oc := conf.Outbox
	if oc.BatchSize <= 0 {
		oc.BatchSize = 50
	}
	if oc.MaxAttempts <= 0 {
		oc.MaxAttempts = 1
	}
	if oc.PollInterval <= 0 {
		oc.PollInterval = 2 * time.Second
	}
	if oc.RetryBackoff <= 0 {
		oc.RetryBackoff = 30 * time.Second
	}
	return &Dispatcher{
		outbox:  outbox,
		repo:    repo,
		tx:      tx,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    oc,
		wake:    make(chan struct{}, 1),
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, intents ...Intent) error {
	if len(intents) == 0 {
		return nil
	}
	_, err := d.outbox.EnqueueIntents(ctx, intents...)
	return errors.Wrap(err, "enqueuing intents")
}

// Wake makes Run process the outbox without waiting for the next tick.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default: // already woken
	}
}

// Run processes the outbox until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.conf.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error(fmt.Sprintf("flushing outbox: %v", err), err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// Flush processes every intent due now and returns how many were handled.
// Intents whose email failed are rescheduled and not retried within the same call.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	var handled int
	for {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		batch, err := d.outbox.QueryDueIntents(ctx, NowFunc().UTC(), d.conf.BatchSize)
		if err != nil {
			return handled, errors.Wrap(err, "querying due intents")
		}

		var progressed int
		for _, it := range batch {
			if err = d.process(ctx, it); err != nil {
				d.logger.Error(fmt.Sprintf("processing intent %s: %v", it.ID, err), err)
				continue
			}
			progressed++
		}
		handled += progressed

		if len(batch) < d.conf.BatchSize || progressed == 0 {
			return handled, nil
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, it Intent) error {
	if !it.Recorded {
		recorded := it
		err := d.tx.WithinTx(ctx, func(ctx context.Context) error {
			recorded = it
			n, err := d.repo.CreateNotification(ctx, it.Notification())
			if err != nil {
				return errors.Wrap(err, "creating notification")
			}
			recorded.Recorded = true
			recorded.NotificationID = n.ID
			recorded.UpdatedAt = NowFunc().UTC()
			_, err = d.outbox.UpdateIntent(ctx, recorded)
			return errors.Wrap(err, "marking intent recorded")
		})
		if err != nil {
			return err
		}
		it = recorded
	}

	it.Attempts++
	if err := d.mailSvc.Send(ctx, it.Email()); err != nil {
		it.LastError = err.Error()
		if it.Attempts >= d.conf.MaxAttempts {
			it.Status = StatusFailed
			d.logger.Warn(fmt.Sprintf("giving up on %s email to %s after %d attempts: %v", it.Event, it.Recipient.Email, it.Attempts, err))
		} else {
			it.NextAttemptAt = NowFunc().UTC().Add(d.backoff(it.Attempts))
		}
	} else {
		it.Status = StatusDelivered
		it.LastError = ""
	}
	it.UpdatedAt = NowFunc().UTC()
	_, err := d.outbox.UpdateIntent(ctx, it)
	return errors.Wrap(err, "updating intent")
}

// backoff returns RetryBackoff * 2^(attempts-1).
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.conf.RetryBackoff
	for i := 1; i < attempts && delay < 24*time.Hour; i++ {
		delay *= 2
	}
	return delay
}
