package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/model"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type QueryOptions struct {
	// Kind narrows the query to one entity kind; empty returns every kind.
	Kind       model.Kind
	Limit      int
	Cursor     string
	Descending bool
}

// Page is one slice of a query. NextCursor is empty on the last page.
type Page struct {
	Items      []model.Item
	NextCursor string
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// encodeCursor makes a query's last evaluated key opaque to callers.
func encodeCursor(lastKey map[string]string) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(lastKey)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor restores a start key and rejects cursors minted for another
// partition, so a cursor can never move a query into foreign data.
func decodeCursor(cursor, index, partition string) (map[string]string, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var key map[string]string
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, ErrInvalidCursor
	}
	pkAttr, skAttr, err := database.IndexKeyAttrs(index)
	if err != nil {
		return nil, err
	}
	if key[pkAttr] != partition || key[skAttr] == "" || key[model.AttrPK] == "" || key[model.AttrSK] == "" {
		return nil, ErrInvalidCursor
	}
	return key, nil
}

// QueryByTenant lists one page of a tenant's records in sort-key order.
// Only records in the tenant's own partition are ever returned.
func (s *Store) QueryByTenant(ctx context.Context, tenantID string, opts QueryOptions) (Page, error) {
	if err := model.ValidateID(tenantID); err != nil {
		return Page{}, fmt.Errorf("%w: tenant: %v", ErrInvalidKey, err)
	}
	prefix := ""
	if opts.Kind != "" {
		if !opts.Kind.Valid() {
			return Page{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, opts.Kind)
		}
		prefix = model.SortKeyPrefix(opts.Kind)
	}

	partition := model.PartitionKey(tenantID)
	start, err := decodeCursor(opts.Cursor, "", partition)
	if err != nil {
		return Page{}, err
	}
	if start != nil && !strings.HasPrefix(start[model.AttrSK], prefix) {
		return Page{}, ErrInvalidCursor
	}

	res, err := s.table.Query(ctx, database.Query{
		PartitionKey:  partition,
		SortKeyPrefix: prefix,
		Limit:         pageSize(opts.Limit),
		StartKey:      start,
		Descending:    opts.Descending,
	})
	if err != nil {
		return Page{}, err
	}
	return toPage(res, func(it model.Item) bool { return it.TenantID == tenantID })
}

func toPage(res database.QueryResult, keep func(model.Item) bool) (Page, error) {
	items := make([]model.Item, 0, len(res.Items))
	for _, it := range res.Items {
		if keep(it) {
			items = append(items, it)
		}
	}
	next, err := encodeCursor(res.LastKey)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, NextCursor: next}, nil
}

// IterateTenant walks every page of QueryByTenant. Iteration stops at the
// first error, which is yielded with a zero item.
func (s *Store) IterateTenant(ctx context.Context, tenantID string, opts QueryOptions) iter.Seq2[model.Item, error] {
	return iteratePages(opts.Cursor, func(cursor string) (Page, error) {
		o := opts
		o.Cursor = cursor
		return s.QueryByTenant(ctx, tenantID, o)
	})
}

func iteratePages(cursor string, fetch func(cursor string) (Page, error)) iter.Seq2[model.Item, error] {
	return func(yield func(model.Item, error) bool) {
		for {
			page, err := fetch(cursor)
			if err != nil {
				yield(model.Item{}, err)
				return
			}
			for _, it := range page.Items {
				if !yield(it, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}
}
