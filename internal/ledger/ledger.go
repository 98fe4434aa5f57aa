package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"
	"wedding-site-backend/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrNotFound         = store.ErrNotFound
	ErrInvalidKey       = store.ErrInvalidKey
	ErrStoreUnavailable = store.ErrStoreUnavailable

	ErrInvalidQuantity      = errors.New("ledger: quantity must be positive")
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity remaining")
	// ErrContention means every attempt lost the compare-and-set race.
	ErrContention = errors.New("ledger: too much contention, try again")
	// ErrIdempotencyConflict reuses an idempotency key on the same gift with a
	// different quantity.
	ErrIdempotencyConflict = errors.New("ledger: idempotency key reused with different parameters")
	ErrLedgerInconsistent  = errors.New("ledger: reserved quantity would become negative")
)

// errContended is retried; it never leaves the package.
var errContended = errors.New("ledger: compare-and-set lost")

const (
	defaultAttempts        = 8
	defaultInitialInterval = 20 * time.Millisecond
	defaultMaxInterval     = 500 * time.Millisecond
)

// Notifier hears about every committed change to a gift's counters.
type Notifier interface {
	GiftChanged(ctx context.Context, gift model.Gift) error
}

// Ledger reserves gift quantity. Each claim moves the gift's counter and
// appends a reservation in one transaction, so the counter always equals the
// sum of the gift's reservations and never exceeds its total.
type Ledger struct {
	table    database.Table
	policy   config.RetryConfig
	now      func() time.Time
	notifier Notifier
	metrics  *metrics
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Ledger) { l.metrics = newMetrics(reg) }
}

func New(table database.Table, policy config.RetryConfig, opts ...Option) *Ledger {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = defaultInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = defaultMaxInterval
	}

	l := &Ledger{table: table, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type ClaimRequest struct {
	TenantID        string
	GiftID          string
	Quantity        int64
	ClaimantContact string
	// IdempotencyKey becomes the claim id. Retrying a claim with the same
	// key returns the original reservation instead of reserving again.
	IdempotencyKey string
}

type ClaimResult struct {
	Reservation model.Reservation
	Gift        model.Gift
	Replayed    bool
}

type UnclaimResult struct {
	Released model.Reservation
	// Removed is false when no such reservation existed.
	Removed bool
	Gift    model.Gift
}

func (r ClaimRequest) validate() error {
	if err := model.ValidateID(r.TenantID); err != nil {
		return fmt.Errorf("%w: tenant: %v", ErrInvalidKey, err)
	}
	if err := model.ValidateID(r.GiftID); err != nil {
		return fmt.Errorf("%w: gift: %v", ErrInvalidKey, err)
	}
	if r.IdempotencyKey != "" {
		if err := model.ValidateID(r.IdempotencyKey); err != nil {
			return fmt.Errorf("%w: idempotency key: %v", ErrInvalidKey, err)
		}
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func (l *Ledger) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.policy.InitialInterval
	b.MaxInterval = l.policy.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(l.policy.MaxAttempts-1)), ctx)
}

// retry runs fn until it stops reporting errContended. Any other error ends
// the loop unchanged.
func (l *Ledger) retry(ctx context.Context, op string, fn func() error) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn()
		if err == nil || !errors.Is(err, errContended) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.DebugCtx(ctx, "Ledger write lost a race, backing off",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next))
	}

	err := backoff.RetryNotify(operation, l.newBackOff(ctx), notify)
	if errors.Is(err, errContended) {
		return attempts, fmt.Errorf("%w: %s gave up after %d attempts", ErrContention, op, attempts)
	}
	return attempts, err
}

func (l *Ledger) readGift(ctx context.Context, tenantID, giftID string) (model.Gift, error) {
	item, err := l.table.Get(ctx, model.KeyFor(tenantID, model.KindGift, giftID))
	if errors.Is(err, database.ErrNotFound) {
		return model.Gift{}, ErrNotFound
	}
	if err != nil {
		return model.Gift{}, fmt.Errorf("read gift %s: %w", giftID, err)
	}
	if item.TenantID != tenantID {
		return model.Gift{}, ErrNotFound
	}
	return model.GiftFromItem(item)
}

func (l *Ledger) readReservation(ctx context.Context, tenantID, giftID, claimID string) (model.Reservation, bool, error) {
	item, err := l.table.Get(ctx, model.ReservationKey(tenantID, giftID, claimID))
	if errors.Is(err, database.ErrNotFound) {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("read reservation %s: %w", claimID, err)
	}
	r, err := model.ReservationFromItem(item)
	if err != nil {
		return model.Reservation{}, false, err
	}
	return r, true, nil
}

// counterUpdate moves a gift's reserved counter from gift.ReservedQuantity
// to reserved, guarded on the counter still holding the value that was read.
func (l *Ledger) counterUpdate(gift model.Gift, reserved int64, now string) database.WriteOp {
	gsi2pk, gsi2sk := model.StatusKeys(model.KindGift, model.GiftStatus(reserved, gift.TotalQuantity), gift.TenantID, gift.ID)
	return database.UpdateOp(database.Update{
		Key:        model.KeyFor(gift.TenantID, model.KindGift, gift.ID),
		SetPayload: map[string]any{model.FieldReservedQuantity: reserved},
		SetAttrs: map[string]string{
			model.AttrGSI2PK:    gsi2pk,
			model.AttrGSI2SK:    gsi2sk,
			model.AttrUpdatedAt: now,
		},
		IncrementVersion: true,
	}, database.Condition{
		Presence:      database.MustExist,
		PayloadEquals: map[string]any{model.FieldReservedQuantity: gift.ReservedQuantity},
	})
}

func applied(gift model.Gift, reserved int64, now string) model.Gift {
	out := gift
	out.Payload = model.ClonePayload(gift.Payload)
	out.Payload[model.FieldReservedQuantity] = reserved
	out.ReservedQuantity = reserved
	out.Version++
	out.UpdatedAt = now
	return out
}

// Claim reserves req.Quantity units of a gift. It fails with
// ErrInsufficientQuantity rather than ever reserving past the total.
func (l *Ledger) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	if err := req.validate(); err != nil {
		return ClaimResult{}, err
	}
	claimID := req.IdempotencyKey
	if claimID == "" {
		claimID = uuid.NewString()
	}

	var result ClaimResult
	attempts, err := l.retry(ctx, "claim", func() error {
		gift, err := l.readGift(ctx, req.TenantID, req.GiftID)
		if err != nil {
			return err
		}

		if req.Quantity > gift.TotalQuantity-gift.ReservedQuantity {
			prior, found, err := l.readReservation(ctx, req.TenantID, req.GiftID, claimID)
			if err != nil {
				return err
			}
			if found {
				return l.replay(&result, req, prior, gift)
			}
			return ErrInsufficientQuantity
		}

		now := l.now().UTC().Format(time.RFC3339Nano)
		reservation := model.Reservation{
			TenantID:        req.TenantID,
			GiftID:          req.GiftID,
			ClaimID:         claimID,
			QuantityClaimed: req.Quantity,
			ClaimantContact: req.ClaimantContact,
			CreatedAt:       now,
		}
		reserved := gift.ReservedQuantity + req.Quantity

		err = l.table.TransactWrite(ctx, "", []database.WriteOp{
			l.counterUpdate(gift, reserved, now),
			database.PutOp(reservation.Item(), database.Condition{Presence: database.MustNotExist}),
		})
		var cf *database.ConditionFailedError
		switch {
		case err == nil:
			result = ClaimResult{Reservation: reservation, Gift: applied(gift, reserved, now)}
			return nil
		case errors.As(err, &cf) && cf.Failed(1):
			prior, found, err := l.readReservation(ctx, req.TenantID, req.GiftID, claimID)
			if err != nil {
				return err
			}
			if !found {
				return errContended
			}
			return l.replay(&result, req, prior, gift)
		case errors.As(err, &cf):
			return errContended
		}
		return err
	})

	l.metrics.observeClaim(err, result.Replayed, attempts)
	if err != nil {
		if !errors.Is(err, ErrInsufficientQuantity) && !errors.Is(err, ErrNotFound) {
			logger.WarnCtx(ctx, "Claim failed",
				zap.String("tenant_id", req.TenantID),
				zap.String("gift_id", req.GiftID),
				zap.Int("attempts", attempts),
				zap.Error(err))
		}
		return ClaimResult{}, err
	}

	if !result.Replayed {
		l.notify(ctx, result.Gift)
	}
	return result, nil
}

func (l *Ledger) replay(result *ClaimResult, req ClaimRequest, prior model.Reservation, gift model.Gift) error {
	if prior.QuantityClaimed != req.Quantity {
		return ErrIdempotencyConflict
	}
	*result = ClaimResult{Reservation: prior, Gift: gift, Replayed: true}
	return nil
}

// Unclaim releases a reservation and returns its quantity to the gift.
// Releasing a reservation that does not exist succeeds without effect.
func (l *Ledger) Unclaim(ctx context.Context, tenantID, giftID, claimID string) (UnclaimResult, error) {
	for _, id := range []string{tenantID, giftID, claimID} {
		if err := model.ValidateID(id); err != nil {
			return UnclaimResult{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	}
	reservationKey := model.ReservationKey(tenantID, giftID, claimID)

	var result UnclaimResult
	attempts, err := l.retry(ctx, "unclaim", func() error {
		result = UnclaimResult{}
		reservation, found, err := l.readReservation(ctx, tenantID, giftID, claimID)
		if err != nil || !found {
			return err
		}

		gift, err := l.readGift(ctx, tenantID, giftID)
		if errors.Is(err, ErrNotFound) {
			// The gift is gone; only the orphaned row remains.
			err := l.table.Write(ctx, database.DeleteOp(reservationKey, database.Condition{}))
			if err == nil {
				result = UnclaimResult{Released: reservation, Removed: true}
			}
			return err
		}
		if err != nil {
			return err
		}

		reserved := gift.ReservedQuantity - reservation.QuantityClaimed
		if reserved < 0 {
			return fmt.Errorf("%w: gift %s holds %d, reservation %s claims %d",
				ErrLedgerInconsistent, giftID, gift.ReservedQuantity, claimID, reservation.QuantityClaimed)
		}

		now := l.now().UTC().Format(time.RFC3339Nano)
		err = l.table.TransactWrite(ctx, "", []database.WriteOp{
			l.counterUpdate(gift, reserved, now),
			database.DeleteOp(reservationKey, database.Condition{Presence: database.MustExist}),
		})
		if errors.Is(err, database.ErrConditionFailed) {
			return errContended
		}
		if err != nil {
			return err
		}
		result = UnclaimResult{Released: reservation, Removed: true, Gift: applied(gift, reserved, now)}
		return nil
	})

	l.metrics.observeUnclaim(err, result.Removed)
	if err != nil {
		logger.WarnCtx(ctx, "Unclaim failed",
			zap.String("tenant_id", tenantID),
			zap.String("gift_id", giftID),
			zap.String("claim_id", claimID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return UnclaimResult{}, err
	}
	if result.Removed && result.Gift.ID != "" {
		l.notify(ctx, result.Gift)
	}
	return result, nil
}

func (l *Ledger) notify(ctx context.Context, gift model.Gift) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.GiftChanged(ctx, gift); err != nil {
		logger.WarnCtx(ctx, "Failed to publish gift change",
			zap.String("tenant_id", gift.TenantID),
			zap.String("gift_id", gift.ID),
			zap.Error(err))
	}
}
