package store

import (
	"context"
	"fmt"
	"iter"

	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/model"
)

// StatusIndex lists records of one kind by lifecycle status. Results come
// from an eventually consistent index.
type StatusIndex struct {
	table database.Table
}

func NewStatusIndex(table database.Table) *StatusIndex {
	return &StatusIndex{table: table}
}

type StatusQuery struct {
	// TenantID restricts the listing to one tenant; empty lists across
	// tenants and is reserved for platform tooling.
	TenantID   string
	Limit      int
	Cursor     string
	Descending bool
}

func (x *StatusIndex) ListByStatus(ctx context.Context, kind model.Kind, status string, q StatusQuery) (Page, error) {
	if !model.StatusTracked(kind) {
		return Page{}, fmt.Errorf("%w: kind %q has no status", ErrInvalidKey, kind)
	}
	if !model.ValidStatus(kind, status) {
		return Page{}, fmt.Errorf("%w: status %q", ErrInvalidKey, status)
	}
	prefix := ""
	if q.TenantID != "" {
		if err := model.ValidateID(q.TenantID); err != nil {
			return Page{}, fmt.Errorf("%w: tenant: %v", ErrInvalidKey, err)
		}
		prefix = model.StatusTenantPrefix(q.TenantID)
	}

	partition := model.StatusPartition(kind, status)
	start, err := decodeCursor(q.Cursor, model.ByStatusIndex, partition)
	if err != nil {
		return Page{}, err
	}
	if start != nil && q.TenantID != "" && start[model.AttrPK] != model.PartitionKey(q.TenantID) {
		return Page{}, ErrInvalidCursor
	}

	res, err := x.table.Query(ctx, database.Query{
		Index:         model.ByStatusIndex,
		PartitionKey:  partition,
		SortKeyPrefix: prefix,
		Limit:         pageSize(q.Limit),
		StartKey:      start,
		Descending:    q.Descending,
	})
	if err != nil {
		return Page{}, err
	}
	return toPage(res, func(it model.Item) bool {
		return it.Kind == kind && (q.TenantID == "" || it.TenantID == q.TenantID)
	})
}

func (x *StatusIndex) IterateByStatus(ctx context.Context, kind model.Kind, status string, q StatusQuery) iter.Seq2[model.Item, error] {
	return iteratePages(q.Cursor, func(cursor string) (Page, error) {
		o := q
		o.Cursor = cursor
		return x.ListByStatus(ctx, kind, status, o)
	})
}
