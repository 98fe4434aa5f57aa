package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 20, 14, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *database.MemoryTable) {
	t.Helper()
	table := database.NewMemoryTable()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(table, opts...), table
}

func version(v int64) *int64 { return &v }

func putTenant(t *testing.T, s *Store, tenantID, slug string) model.Item {
	t.Helper()
	item, err := s.Put(context.Background(), PutParams{
		TenantID: tenantID,
		Kind:     model.KindTenant,
		EntityID: tenantID,
		Payload:  map[string]any{model.FieldSlug: slug, model.FieldDisplayName: "Anna & Ben"},
	})
	require.NoError(t, err)
	return item
}

func putGift(t *testing.T, s *Store, tenantID, giftID string, total int64) model.Item {
	t.Helper()
	item, err := s.Put(context.Background(), PutParams{
		TenantID: tenantID,
		Kind:     model.KindGift,
		EntityID: giftID,
		Payload:  map[string]any{model.FieldName: "Gift " + giftID, model.FieldTotalQuantity: total},
	})
	require.NoError(t, err)
	return item
}

func TestPutAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Put(ctx, PutParams{
		TenantID: "t1",
		Kind:     model.KindSettings,
		EntityID: "site",
		Payload:  map[string]any{"theme": "garden"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), created.CreatedAt)

	got, err := s.Get(ctx, "t1", model.KindSettings, "site")
	require.NoError(t, err)
	assert.Equal(t, "garden", got.Payload["theme"])
	assert.Equal(t, "t1", got.TenantID)

	updated, err := s.Put(ctx, PutParams{
		TenantID: "t1",
		Kind:     model.KindSettings,
		EntityID: "site",
		Payload:  map[string]any{"theme": "beach"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, err = s.Get(ctx, "t1", model.KindSettings, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutExpectedVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	params := PutParams{
		TenantID:        "t1",
		Kind:            model.KindSettings,
		EntityID:        "site",
		Payload:         map[string]any{"theme": "garden"},
		ExpectedVersion: version(0),
	}

	_, err := s.Put(ctx, params)
	require.NoError(t, err)

	_, err = s.Put(ctx, params)
	assert.ErrorIs(t, err, ErrVersionConflict, "create-only put on an existing record")

	params.ExpectedVersion = version(1)
	params.Payload = map[string]any{"theme": "beach"}
	second, err := s.Put(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	params.Payload = map[string]any{"theme": "stale"}
	_, err = s.Put(ctx, params)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.Get(ctx, "t1", model.KindSettings, "site")
	require.NoError(t, err)
	assert.Equal(t, "beach", got.Payload["theme"])
	assert.Equal(t, int64(2), got.Version)
}

func TestUnversionedPutRetriesLostRace(t *testing.T) {
	s, table := newTestStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, PutParams{TenantID: "t1", Kind: model.KindSettings, EntityID: "site", Payload: map[string]any{"n": 1}})
	require.NoError(t, err)

	raced := false
	table.InjectFault(func(op string) error {
		if op != database.OpWrite || raced {
			return nil
		}
		raced = true
		current, err := table.Get(ctx, model.KeyFor("t1", model.KindSettings, "site"))
		require.NoError(t, err)
		current.Version++
		return table.Write(ctx, database.PutOp(current, database.Condition{}))
	})

	item, err := s.Put(ctx, PutParams{TenantID: "t1", Kind: model.KindSettings, EntityID: "site", Payload: map[string]any{"n": 2}})
	require.NoError(t, err)
	assert.True(t, raced)
	assert.Equal(t, int64(3), item.Version)
}

func TestUnversionedPutGivesUpAfterAttempts(t *testing.T) {
	s, table := newTestStore(t, WithUpsertAttempts(2))
	ctx := context.Background()
	_, err := s.Put(ctx, PutParams{TenantID: "t1", Kind: model.KindSettings, EntityID: "site", Payload: map[string]any{}})
	require.NoError(t, err)

	table.InjectFault(func(op string) error {
		if op == database.OpWrite {
			return &database.ConditionFailedError{Indexes: []int{0}}
		}
		return nil
	})

	_, err = s.Put(ctx, PutParams{TenantID: "t1", Kind: model.KindSettings, EntityID: "site", Payload: map[string]any{}})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestTenantIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	putTenant(t, s, "t1", "anna-and-ben")
	putTenant(t, s, "t2", "carla-and-dan")
	putGift(t, s, "t1", "g1", 1)
	putGift(t, s, "t2", "g1", 5)

	g, err := s.Get(ctx, "t2", model.KindGift, "g1")
	require.NoError(t, err)
	total, _ := model.Int64Field(g.Payload, model.FieldTotalQuantity)
	assert.Equal(t, int64(5), total)

	page, err := s.QueryByTenant(ctx, "t1", QueryOptions{})
	require.NoError(t, err)
	for _, it := range page.Items {
		assert.Equal(t, "t1", it.TenantID)
	}
	assert.Len(t, page.Items, 2)

	_, err = s.Get(ctx, "t2", model.KindGift, "g2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params PutParams
		want   error
	}{
		{"empty tenant", PutParams{Kind: model.KindGift, EntityID: "g1"}, ErrInvalidKey},
		{"separator in id", PutParams{TenantID: "t1", Kind: model.KindGift, EntityID: "g#1"}, ErrInvalidKey},
		{"unknown kind", PutParams{TenantID: "t1", Kind: "WIDGET", EntityID: "w1"}, ErrInvalidKey},
		{"slug kind", PutParams{TenantID: "t1", Kind: model.KindSlug, EntityID: "s"}, ErrInvalidKey},
		{"tenant id mismatch", PutParams{TenantID: "t1", Kind: model.KindTenant, EntityID: "t2"}, ErrInvalidKey},
		{"reservation", PutParams{TenantID: "t1", Kind: model.KindReservation, EntityID: "g1#c1"}, ErrLedgerManaged},
		{"gift without total", PutParams{TenantID: "t1", Kind: model.KindGift, EntityID: "g1", Payload: map[string]any{}}, ErrInvalidPayload},
		{"negative total", PutParams{TenantID: "t1", Kind: model.KindGift, EntityID: "g1", Payload: map[string]any{model.FieldTotalQuantity: -1}}, ErrInvalidPayload},
		{"bad attendance", PutParams{TenantID: "t1", Kind: model.KindGuestResponse, EntityID: "r1", Payload: map[string]any{model.FieldAttendance: "maybe"}}, ErrInvalidPayload},
		{"bad slug", PutParams{TenantID: "t1", Kind: model.KindTenant, EntityID: "t1", Payload: map[string]any{model.FieldSlug: "no spaces"}}, ErrInvalidPayload},
		{"bad status", PutParams{TenantID: "t1", Kind: model.KindTenant, EntityID: "t1", Payload: map[string]any{model.FieldSlug: "ok", model.FieldStatus: "gone"}}, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.ErrorIs(t, s.Delete(ctx, "t1", model.KindReservation, "g1#c1"), ErrLedgerManaged)
}

func TestGiftPutPreservesLedgerCounters(t *testing.T) {
	s, table := newTestStore(t)
	ctx := context.Background()
	gift := putGift(t, s, "t1", "g1", 3)

	require.NoError(t, table.Write(ctx, database.UpdateOp(database.Update{
		Key:              gift.Key(),
		SetPayload:       map[string]any{model.FieldReservedQuantity: int64(1)},
		IncrementVersion: true,
	}, database.Condition{Presence: database.MustExist})))

	updated, err := s.Put(ctx, PutParams{
		TenantID: "t1",
		Kind:     model.KindGift,
		EntityID: "g1",
		Payload: map[string]any{
			model.FieldName:             "Renamed",
			model.FieldTotalQuantity:    10,
			model.FieldReservedQuantity: 0,
		},
	})
	require.NoError(t, err)

	g, err := model.GiftFromItem(updated)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", g.Name)
	assert.Equal(t, int64(3), g.TotalQuantity)
	assert.Equal(t, int64(1), g.ReservedQuantity)
	assert.Equal(t, int64(3), updated.Version)
}

func TestSlugUniqueness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	putTenant(t, s, "t1", "anna-and-ben")

	_, err := s.Put(ctx, PutParams{
		TenantID: "t2",
		Kind:     model.KindTenant,
		EntityID: "t2",
		Payload:  map[string]any{model.FieldSlug: "Anna-And-Ben"},
	})
	assert.ErrorIs(t, err, ErrSlugTaken)

	_, err = s.Get(ctx, "t2", model.KindTenant, "t2")
	assert.ErrorIs(t, err, ErrNotFound, "losing tenant must not be written")

	// Re-putting the same slug is not a conflict with itself.
	again := putTenant(t, s, "t1", "anna-and-ben")
	assert.Equal(t, int64(2), again.Version)
}

func TestConcurrentSlugRegistrationHasOneWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			tid := fmt.Sprintf("t%d", i)
			_, err := s.Put(ctx, PutParams{
				TenantID: tid,
				Kind:     model.KindTenant,
				EntityID: tid,
				Payload:  map[string]any{model.FieldSlug: "popular"},
			})
			errs <- err
		}(i)
	}

	wins := 0
	for i := 0; i < n; i++ {
		err := <-errs
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrSlugTaken)
	}
	assert.Equal(t, 1, wins)
}

func TestSlugRenameReleasesOldSlug(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	idx := NewSlugIndex(s.table, nil)
	putTenant(t, s, "t1", "anna")

	renamed, err := s.Put(ctx, PutParams{
		TenantID:        "t1",
		Kind:            model.KindTenant,
		EntityID:        "t1",
		Payload:         map[string]any{model.FieldSlug: "anna-and-ben", model.FieldDisplayName: "Anna & Ben"},
		ExpectedVersion: version(1),
	})
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusDraft, renamed.Payload[model.FieldStatus], "status carried forward")

	_, err = idx.Resolve(ctx, "anna")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := idx.Resolve(ctx, "anna-and-ben")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)

	putTenant(t, s, "t2", "anna")
	got, err = idx.Resolve(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, "t2", got)
}

func TestCreateTenant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	item, err := s.CreateTenant(ctx, "anna-and-ben", map[string]any{model.FieldDisplayName: "Anna & Ben"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.TenantID)
	assert.Equal(t, item.TenantID, item.EntityID)

	tenant, err := model.TenantFromItem(item)
	require.NoError(t, err)
	assert.Equal(t, "anna-and-ben", tenant.Slug)
	assert.Equal(t, model.TenantStatusDraft, tenant.Status)

	_, err = s.CreateTenant(ctx, "anna-and-ben", nil)
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestDeleteTenantCascades(t *testing.T) {
	s, table := newTestStore(t)
	ctx := context.Background()
	putTenant(t, s, "t1", "anna")
	putTenant(t, s, "t2", "carla")
	for i := 0; i < 120; i++ {
		putGift(t, s, "t1", fmt.Sprintf("g%03d", i), 1)
	}
	require.NoError(t, table.Write(ctx, database.PutOp(
		model.Reservation{TenantID: "t1", GiftID: "g000", ClaimID: "c1", QuantityClaimed: 1}.Item(),
		database.Condition{})))
	putGift(t, s, "t2", "g1", 1)

	require.NoError(t, s.Delete(ctx, "t1", model.KindTenant, "t1"))

	for _, it := range table.Items() {
		assert.NotEqual(t, "t1", it.TenantID, "left behind %s/%s", it.PK, it.SK)
	}
	_, err := s.Get(ctx, "t2", model.KindGift, "g1")
	require.NoError(t, err)

	putTenant(t, s, "t3", "anna")
	assert.ErrorIs(t, s.Delete(ctx, "t1", model.KindTenant, "t1"), ErrNotFound)
}

func TestDeleteGiftSweepsReservations(t *testing.T) {
	s, table := newTestStore(t)
	ctx := context.Background()
	putGift(t, s, "t1", "g1", 3)
	putGift(t, s, "t1", "g10", 3)
	for _, r := range []model.Reservation{
		{TenantID: "t1", GiftID: "g1", ClaimID: "c1", QuantityClaimed: 1},
		{TenantID: "t1", GiftID: "g1", ClaimID: "c2", QuantityClaimed: 2},
		{TenantID: "t1", GiftID: "g10", ClaimID: "c3", QuantityClaimed: 1},
	} {
		require.NoError(t, table.Write(ctx, database.PutOp(r.Item(), database.Condition{})))
	}

	require.NoError(t, s.Delete(ctx, "t1", model.KindGift, "g1"))

	page, err := s.QueryByTenant(ctx, "t1", QueryOptions{Kind: model.KindReservation})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.ReservationEntityID("g10", "c3"), page.Items[0].EntityID)

	assert.ErrorIs(t, s.Delete(ctx, "t1", model.KindGift, "g1"), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "t1", model.KindSettings, "site"), ErrNotFound)
}

func TestQueryByTenantPagination(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		putGift(t, s, "t1", fmt.Sprintf("g%d", i), 1)
	}
	putGift(t, s, "t2", "g1", 1)

	var ids []string
	cursor := ""
	pages := 0
	for {
		page, err := s.QueryByTenant(ctx, "t1", QueryOptions{Kind: model.KindGift, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, it := range page.Items {
			ids = append(ids, it.EntityID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"g1", "g2", "g3", "g4", "g5"}, ids)
	assert.Equal(t, 3, pages)

	desc, err := s.QueryByTenant(ctx, "t1", QueryOptions{Kind: model.KindGift, Limit: 1, Descending: true})
	require.NoError(t, err)
	require.Len(t, desc.Items, 1)
	assert.Equal(t, "g5", desc.Items[0].EntityID)

	var iterated []string
	for it, err := range s.IterateTenant(ctx, "t1", QueryOptions{Kind: model.KindGift, Limit: 2}) {
		require.NoError(t, err)
		iterated = append(iterated, it.EntityID)
	}
	assert.Equal(t, ids, iterated)
}

func TestQueryByTenantRejectsForeignCursor(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	putGift(t, s, "t1", "g1", 1)
	putGift(t, s, "t1", "g2", 1)

	page, err := s.QueryByTenant(ctx, "t1", QueryOptions{Kind: model.KindGift, Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, page.NextCursor)

	_, err = s.QueryByTenant(ctx, "t2", QueryOptions{Kind: model.KindGift, Cursor: page.NextCursor})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = s.QueryByTenant(ctx, "t1", QueryOptions{Kind: model.KindSettings, Cursor: page.NextCursor})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = s.QueryByTenant(ctx, "t1", QueryOptions{Cursor: "not base64!"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestStoreUnavailablePropagates(t *testing.T) {
	s, table := newTestStore(t)
	table.InjectFault(func(string) error { return database.ErrStoreUnavailable })

	_, err := s.Get(context.Background(), "t1", model.KindGift, "g1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.Put(context.Background(), PutParams{TenantID: "t1", Kind: model.KindSettings, EntityID: "site"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ErrNotFound))
}
