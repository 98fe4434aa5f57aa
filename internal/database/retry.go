package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultRetryAttempts        = 4
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = time.Second
)

// RetryingTable retries transient failures of the wrapped table with
// exponential backoff and reports exhaustion as ErrStoreUnavailable.
type RetryingTable struct {
	next    Table
	policy  config.RetryConfig
	retries *prometheus.CounterVec
}

func NewRetryingTable(next Table, policy config.RetryConfig, reg prometheus.Registerer) *RetryingTable {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultRetryAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = defaultRetryInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = defaultRetryMaxInterval
	}

	t := &RetryingTable{next: next, policy: policy}
	if reg != nil {
		t.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wedding_site_store_retries_total",
			Help: "Transient store failures that were retried, by operation.",
		}, []string{"operation"})
		reg.MustRegister(t.retries)
	}
	return t
}

func (t *RetryingTable) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.policy.InitialInterval
	b.MaxInterval = t.policy.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.policy.MaxAttempts-1)), ctx)
}

func (t *RetryingTable) do(ctx context.Context, op string, fn func() error) error {
	var attempt int
	operation := func() error {
		attempt++
		err := fn()
		if err == nil || !errors.Is(err, ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if t.retries != nil {
			t.retries.WithLabelValues(op).Inc()
		}
		logger.WarnCtx(ctx, "Transient store failure, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, t.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrStoreUnavailable, op, attempt, err)
	}
	return err
}

func (t *RetryingTable) Get(ctx context.Context, key model.Key) (model.Item, error) {
	var item model.Item
	err := t.do(ctx, OpGet, func() error {
		var err error
		item, err = t.next.Get(ctx, key)
		return err
	})
	return item, err
}

func (t *RetryingTable) Query(ctx context.Context, q Query) (QueryResult, error) {
	var res QueryResult
	err := t.do(ctx, OpQuery, func() error {
		var err error
		res, err = t.next.Query(ctx, q)
		return err
	})
	return res, err
}

func (t *RetryingTable) Write(ctx context.Context, op WriteOp) error {
	return t.do(ctx, OpWrite, func() error {
		return t.next.Write(ctx, op)
	})
}

// TransactWrite pins one request token across retries so a transaction
// that committed before a transient error is not applied twice.
func (t *RetryingTable) TransactWrite(ctx context.Context, token string, ops []WriteOp) error {
	if token == "" {
		token = uuid.NewString()
	}
	return t.do(ctx, OpTransactWrite, func() error {
		return t.next.TransactWrite(ctx, token, ops)
	})
}

func (t *RetryingTable) BatchDelete(ctx context.Context, keys []model.Key) error {
	return t.do(ctx, OpBatchDelete, func() error {
		return t.next.BatchDelete(ctx, keys)
	})
}
