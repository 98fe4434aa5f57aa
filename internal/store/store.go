package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-site-backend/internal/cache"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrSlugTaken       = errors.New("store: slug already taken")
	ErrInvalidKey      = errors.New("store: invalid key")
	ErrInvalidPayload  = errors.New("store: invalid payload")
	ErrInvalidCursor   = errors.New("store: invalid cursor")
	// ErrLedgerManaged rejects generic writes to reservation records.
	ErrLedgerManaged    = errors.New("store: reservations are managed by the ledger")
	ErrStoreUnavailable = database.ErrStoreUnavailable
)

const defaultUpsertAttempts = 3

// Store is the tenant-scoped entity store over one keyed table. Every read
// and write is confined to the partition of the tenant it names.
type Store struct {
	table          database.Table
	cache          cache.SlugCache
	now            func() time.Time
	upsertAttempts int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSlugCache lets tenant writes invalidate cached slug resolutions.
func WithSlugCache(c cache.SlugCache) Option {
	return func(s *Store) { s.cache = c }
}

// WithUpsertAttempts bounds re-reads when an unversioned put loses a race.
func WithUpsertAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.upsertAttempts = n
		}
	}
}

func New(table database.Table, opts ...Option) *Store {
	s := &Store{
		table:          table,
		now:            time.Now,
		upsertAttempts: defaultUpsertAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PutParams struct {
	TenantID string
	Kind     model.Kind
	EntityID string
	Payload  map[string]any
	// ExpectedVersion turns the put into a compare-and-set: 0 means the
	// record must not exist yet. Nil means unconditional upsert.
	ExpectedVersion *int64
}

func validateKey(tenantID string, kind model.Kind, entityID string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, kind)
	}
	if err := model.ValidateID(tenantID); err != nil {
		return fmt.Errorf("%w: tenant: %v", ErrInvalidKey, err)
	}
	if err := model.ValidateEntityID(kind, entityID); err != nil {
		return fmt.Errorf("%w: entity: %v", ErrInvalidKey, err)
	}
	if kind == model.KindTenant && entityID != tenantID {
		return fmt.Errorf("%w: tenant record id must equal tenant id", ErrInvalidKey)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tenantID string, kind model.Kind, entityID string) (model.Item, error) {
	if err := validateKey(tenantID, kind, entityID); err != nil {
		return model.Item{}, err
	}
	item, found, err := s.read(ctx, model.KeyFor(tenantID, kind, entityID))
	if err != nil {
		return model.Item{}, err
	}
	if !found || item.TenantID != tenantID {
		return model.Item{}, ErrNotFound
	}
	return item, nil
}

func (s *Store) read(ctx context.Context, key model.Key) (model.Item, bool, error) {
	item, err := s.table.Get(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return model.Item{}, false, nil
	}
	if err != nil {
		return model.Item{}, false, fmt.Errorf("read %s/%s: %w", key.PK, key.SK, err)
	}
	return item, true, nil
}

func (s *Store) Put(ctx context.Context, p PutParams) (model.Item, error) {
	if err := validateKey(p.TenantID, p.Kind, p.EntityID); err != nil {
		return model.Item{}, err
	}
	if p.Kind == model.KindReservation {
		return model.Item{}, ErrLedgerManaged
	}

	attempts := s.upsertAttempts
	if p.ExpectedVersion != nil {
		attempts = 1
	}

	key := model.KeyFor(p.TenantID, p.Kind, p.EntityID)
	for attempt := 1; ; attempt++ {
		current, found, err := s.read(ctx, key)
		if err != nil {
			return model.Item{}, err
		}
		if found && current.TenantID != p.TenantID {
			return model.Item{}, fmt.Errorf("%w: record belongs to another tenant", ErrInvalidKey)
		}
		if p.ExpectedVersion != nil && !versionMatches(*p.ExpectedVersion, current, found) {
			return model.Item{}, ErrVersionConflict
		}

		w, err := s.buildPut(p, current, found)
		if err != nil {
			return model.Item{}, err
		}

		err = s.commit(ctx, w.ops)
		if err == nil {
			s.afterPut(ctx, w)
			return w.item, nil
		}

		var cf *database.ConditionFailedError
		if !errors.As(err, &cf) {
			return model.Item{}, err
		}
		if w.slugOp >= 0 && cf.Failed(w.slugOp) {
			return model.Item{}, ErrSlugTaken
		}
		if p.ExpectedVersion != nil {
			return model.Item{}, ErrVersionConflict
		}
		if attempt >= attempts {
			return model.Item{}, fmt.Errorf("%w: lost %d consecutive races", ErrVersionConflict, attempt)
		}
		logger.DebugCtx(ctx, "Unversioned put lost a race, re-reading",
			zap.String("tenant_id", p.TenantID),
			zap.String("kind", string(p.Kind)),
			zap.String("entity_id", p.EntityID),
			zap.Int("attempt", attempt))
	}
}

func versionMatches(expected int64, current model.Item, found bool) bool {
	if expected == 0 {
		return !found
	}
	return found && current.Version == expected
}

// pendingPut is one planned write: the resulting item plus every op that
// must commit with it.
type pendingPut struct {
	item     model.Item
	ops      []database.WriteOp
	slugOp   int
	oldSlug  string
	newSlug  string
	isTenant bool
}

func (s *Store) buildPut(p PutParams, current model.Item, found bool) (pendingPut, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	key := model.KeyFor(p.TenantID, p.Kind, p.EntityID)

	item := model.Item{
		PK:        key.PK,
		SK:        key.SK,
		Kind:      p.Kind,
		TenantID:  p.TenantID,
		EntityID:  p.EntityID,
		Payload:   model.ClonePayload(p.Payload),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cond := database.Condition{Presence: database.MustNotExist}
	if found {
		item.Version = current.Version + 1
		item.CreatedAt = current.CreatedAt
		version := current.Version
		cond = database.Condition{Presence: database.MustExist, VersionEquals: &version}
	}

	w := pendingPut{slugOp: -1}

	switch p.Kind {
	case model.KindTenant:
		if err := s.prepareTenant(&item, current, found, &w); err != nil {
			return pendingPut{}, err
		}
	case model.KindGift:
		if err := prepareGift(&item, current, found); err != nil {
			return pendingPut{}, err
		}
	case model.KindGuestResponse:
		attendance := model.StringField(item.Payload, model.FieldAttendance)
		if attendance == "" {
			attendance = model.AttendancePending
			item.Payload[model.FieldAttendance] = attendance
		}
		if !model.ValidStatus(model.KindGuestResponse, attendance) {
			return pendingPut{}, fmt.Errorf("%w: attendance %q", ErrInvalidPayload, attendance)
		}
		item.GSI2PK, item.GSI2SK = model.StatusKeys(p.Kind, attendance, p.TenantID, p.EntityID)
	}

	w.item = item
	w.ops = append([]database.WriteOp{database.PutOp(item, cond)}, w.ops...)
	if w.slugOp >= 0 {
		w.slugOp++
	}
	return w, nil
}

// prepareGift carries ledger-owned counters forward; totalQuantity is fixed
// when the gift is first written.
func prepareGift(item *model.Item, current model.Item, found bool) error {
	if found {
		total, _ := model.Int64Field(current.Payload, model.FieldTotalQuantity)
		reserved, _ := model.Int64Field(current.Payload, model.FieldReservedQuantity)
		item.Payload[model.FieldTotalQuantity] = total
		item.Payload[model.FieldReservedQuantity] = reserved
	} else {
		total, ok := model.Int64Field(item.Payload, model.FieldTotalQuantity)
		if !ok || total < 0 {
			return fmt.Errorf("%w: %s must be a non-negative whole number", ErrInvalidPayload, model.FieldTotalQuantity)
		}
		item.Payload[model.FieldTotalQuantity] = total
		item.Payload[model.FieldReservedQuantity] = int64(0)
	}

	total, _ := model.Int64Field(item.Payload, model.FieldTotalQuantity)
	reserved, _ := model.Int64Field(item.Payload, model.FieldReservedQuantity)
	item.GSI2PK, item.GSI2SK = model.StatusKeys(model.KindGift, model.GiftStatus(reserved, total), item.TenantID, item.EntityID)
	return nil
}

func (s *Store) commit(ctx context.Context, ops []database.WriteOp) error {
	if len(ops) == 1 {
		return s.table.Write(ctx, ops[0])
	}
	return s.table.TransactWrite(ctx, "", ops)
}

func (s *Store) afterPut(ctx context.Context, w pendingPut) {
	if !w.isTenant || s.cache == nil || w.oldSlug == "" || w.oldSlug == w.newSlug {
		return
	}
	if err := s.cache.Delete(ctx, w.oldSlug); err != nil {
		logger.WarnCtx(ctx, "Failed to invalidate slug cache",
			zap.String("slug", w.oldSlug), zap.Error(err))
	}
}

func (s *Store) Delete(ctx context.Context, tenantID string, kind model.Kind, entityID string) error {
	if err := validateKey(tenantID, kind, entityID); err != nil {
		return err
	}

	switch kind {
	case model.KindReservation:
		return ErrLedgerManaged
	case model.KindTenant:
		return s.deleteTenant(ctx, tenantID)
	case model.KindGift:
		return s.deleteGift(ctx, tenantID, entityID)
	}

	err := s.table.Write(ctx, database.DeleteOp(model.KeyFor(tenantID, kind, entityID), database.Condition{Presence: database.MustExist}))
	if errors.Is(err, database.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

// deleteGift removes the gift first so no new claim can commit, then sweeps
// the reservations recorded against it.
func (s *Store) deleteGift(ctx context.Context, tenantID, giftID string) error {
	key := model.KeyFor(tenantID, model.KindGift, giftID)
	err := s.table.Write(ctx, database.DeleteOp(key, database.Condition{Presence: database.MustExist}))
	if errors.Is(err, database.ErrConditionFailed) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	swept, err := s.sweep(ctx, tenantID, model.ReservationPrefix(giftID))
	if err != nil {
		return fmt.Errorf("sweep reservations of gift %s: %w", giftID, err)
	}
	logger.DebugCtx(ctx, "Gift deleted",
		zap.String("tenant_id", tenantID),
		zap.String("gift_id", giftID),
		zap.Int("reservations_removed", swept))
	return nil
}

// sweep batch-deletes every record in the tenant partition under prefix,
// one page at a time, skipping the tenant record itself.
func (s *Store) sweep(ctx context.Context, tenantID, prefix string) (int, error) {
	tenantKey := model.TenantKey(tenantID)
	removed := 0
	for {
		res, err := s.table.Query(ctx, database.Query{
			PartitionKey:  model.PartitionKey(tenantID),
			SortKeyPrefix: prefix,
			Limit:         100,
		})
		if err != nil {
			return removed, err
		}

		keys := make([]model.Key, 0, len(res.Items))
		for _, it := range res.Items {
			if it.Key() == tenantKey {
				continue
			}
			keys = append(keys, it.Key())
		}
		if len(keys) == 0 {
			return removed, nil
		}
		if err := s.table.BatchDelete(ctx, keys); err != nil {
			return removed, err
		}
		removed += len(keys)
	}
}
