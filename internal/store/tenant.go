package store

import (
	"context"
	"errors"
	"fmt"

	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateTenant registers a new tenant under a fresh id. It fails with
// ErrSlugTaken when another tenant owns slug.
func (s *Store) CreateTenant(ctx context.Context, slug string, payload map[string]any) (model.Item, error) {
	p := model.ClonePayload(payload)
	p[model.FieldSlug] = slug

	id := uuid.NewString()
	created := int64(0)
	return s.Put(ctx, PutParams{
		TenantID:        id,
		Kind:            model.KindTenant,
		EntityID:        id,
		Payload:         p,
		ExpectedVersion: &created,
	})
}

// prepareTenant fills the index keys of a tenant record and queues the slug
// marker ops that keep slugs unique across tenants.
func (s *Store) prepareTenant(item *model.Item, current model.Item, found bool, w *pendingPut) error {
	w.isTenant = true

	slug := model.NormalizeSlug(model.StringField(item.Payload, model.FieldSlug))
	status := model.StringField(item.Payload, model.FieldStatus)
	if found {
		w.oldSlug = model.StringField(current.Payload, model.FieldSlug)
		if slug == "" {
			slug = w.oldSlug
		}
		if status == "" {
			status = model.StringField(current.Payload, model.FieldStatus)
		}
	}
	if status == "" {
		status = model.TenantStatusDraft
	}

	if err := model.ValidateSlug(slug); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !model.ValidStatus(model.KindTenant, status) {
		return fmt.Errorf("%w: status %q", ErrInvalidPayload, status)
	}

	item.Payload[model.FieldSlug] = slug
	item.Payload[model.FieldStatus] = status
	item.GSI1PK, item.GSI1SK = model.SlugKeys(slug, item.TenantID)
	item.GSI2PK, item.GSI2SK = model.StatusKeys(model.KindTenant, status, item.TenantID, item.EntityID)
	w.newSlug = slug

	if slug == w.oldSlug {
		return nil
	}

	marker := slugMarker(slug, item.TenantID, item.UpdatedAt)
	w.slugOp = len(w.ops)
	w.ops = append(w.ops, database.PutOp(marker, database.Condition{Presence: database.MustNotExist}))
	if w.oldSlug != "" {
		w.ops = append(w.ops, database.DeleteOp(model.SlugMarkerKey(w.oldSlug), database.Condition{}))
	}
	return nil
}

func slugMarker(slug, tenantID, now string) model.Item {
	key := model.SlugMarkerKey(slug)
	return model.Item{
		PK:        key.PK,
		SK:        key.SK,
		Kind:      model.KindSlug,
		TenantID:  tenantID,
		EntityID:  slug,
		Payload:   map[string]any{model.FieldSlug: slug},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// deleteTenant removes the tenant's partition and releases its slug. Child
// records go first so a crash leaves the tenant visible and the delete
// retryable; a second sweep catches records written during the first.
func (s *Store) deleteTenant(ctx context.Context, tenantID string) error {
	current, found, err := s.read(ctx, model.TenantKey(tenantID))
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	slug := model.StringField(current.Payload, model.FieldSlug)

	removed, err := s.sweep(ctx, tenantID, "")
	if err != nil {
		return fmt.Errorf("sweep tenant %s: %w", tenantID, err)
	}

	ops := []database.WriteOp{
		database.DeleteOp(model.TenantKey(tenantID), database.Condition{Presence: database.MustExist}),
	}
	if slug != "" {
		ops = append(ops, database.DeleteOp(model.SlugMarkerKey(slug), database.Condition{}))
	}
	if err := s.commit(ctx, ops); err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return ErrNotFound
		}
		return err
	}

	stragglers, err := s.sweep(ctx, tenantID, "")
	if err != nil {
		return fmt.Errorf("sweep tenant %s: %w", tenantID, err)
	}

	if s.cache != nil && slug != "" {
		if err := s.cache.Delete(ctx, slug); err != nil {
			logger.WarnCtx(ctx, "Failed to invalidate slug cache",
				zap.String("slug", slug), zap.Error(err))
		}
	}

	logger.InfoCtx(ctx, "Tenant deleted",
		zap.String("tenant_id", tenantID),
		zap.String("slug", slug),
		zap.Int("records_removed", removed+stragglers))
	return nil
}
