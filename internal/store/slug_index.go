package store

import (
	"context"
	"errors"
	"fmt"

	"wedding-site-backend/internal/cache"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"go.uber.org/zap"
)

// SlugIndex maps a public slug to the tenant that owns it.
type SlugIndex struct {
	table database.Table
	cache cache.SlugCache
}

func NewSlugIndex(table database.Table, c cache.SlugCache) *SlugIndex {
	return &SlugIndex{table: table, cache: c}
}

// Resolve returns the id of the tenant owning slug. Archived tenants still
// resolve; callers decide what to serve.
func (x *SlugIndex) Resolve(ctx context.Context, slug string) (string, error) {
	slug = model.NormalizeSlug(slug)
	if err := model.ValidateSlug(slug); err != nil {
		return "", ErrNotFound
	}

	if x.cache != nil {
		tenantID, err := x.cache.Get(ctx, slug)
		switch {
		case err == nil:
			if x.stillOwns(ctx, slug, tenantID) {
				return tenantID, nil
			}
			if err := x.cache.Delete(ctx, slug); err != nil {
				logger.WarnCtx(ctx, "Slug cache delete failed", zap.String("slug", slug), zap.Error(err))
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			logger.WarnCtx(ctx, "Slug cache read failed", zap.String("slug", slug), zap.Error(err))
		}
	}

	tenant, err := x.lookup(ctx, slug)
	if err != nil {
		return "", err
	}

	if x.cache != nil {
		if err := x.cache.Set(ctx, slug, tenant.TenantID); err != nil {
			logger.WarnCtx(ctx, "Slug cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return tenant.TenantID, nil
}

// stillOwns reports whether a cached owner still carries slug. Entries can
// outlive a rename made through another instance. When the table cannot be
// read the cached owner is kept.
func (x *SlugIndex) stillOwns(ctx context.Context, slug, tenantID string) bool {
	item, err := x.table.Get(ctx, model.TenantKey(tenantID))
	switch {
	case errors.Is(err, database.ErrNotFound):
		return false
	case err != nil:
		logger.WarnCtx(ctx, "Slug cache check failed, serving cached owner",
			zap.String("slug", slug), zap.String("tenant_id", tenantID), zap.Error(err))
		return true
	}
	return model.StringField(item.Payload, model.FieldSlug) == slug
}

// Lookup returns the tenant record owning slug, bypassing the cache.
func (x *SlugIndex) Lookup(ctx context.Context, slug string) (model.Item, error) {
	slug = model.NormalizeSlug(slug)
	if err := model.ValidateSlug(slug); err != nil {
		return model.Item{}, ErrNotFound
	}
	return x.lookup(ctx, slug)
}

func (x *SlugIndex) lookup(ctx context.Context, slug string) (model.Item, error) {
	res, err := x.table.Query(ctx, database.Query{
		Index:        model.BySlugIndex,
		PartitionKey: model.SlugPartition(slug),
		Limit:        2,
	})
	if err != nil {
		return model.Item{}, fmt.Errorf("query slug %s: %w", slug, err)
	}

	switch len(res.Items) {
	case 0:
		return model.Item{}, ErrNotFound
	case 1:
		return res.Items[0], nil
	}

	// The index lags a rename; the marker record is authoritative.
	marker, err := x.table.Get(ctx, model.SlugMarkerKey(slug))
	if errors.Is(err, database.ErrNotFound) {
		return model.Item{}, ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("read slug marker %s: %w", slug, err)
	}
	for _, it := range res.Items {
		if it.TenantID == marker.TenantID {
			return it, nil
		}
	}
	tenant, err := x.table.Get(ctx, model.TenantKey(marker.TenantID))
	if errors.Is(err, database.ErrNotFound) {
		return model.Item{}, ErrNotFound
	}
	return tenant, err
}
