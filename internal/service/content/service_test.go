package content

import (
	"context"
	"errors"
	"testing"

	"wedding-site-backend/internal/cache"
	"wedding-site-backend/internal/database"
	internaljwt "wedding-site-backend/internal/jwt"
	"wedding-site-backend/internal/model"
	"wedding-site-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	table    *database.MemoryTable
	store    *store.Store
	tenantID string
	editor   Identity
}

func newFixture(t *testing.T, status string) *fixture {
	t.Helper()
	table := database.NewMemoryTable()
	st := store.New(table)

	tenant, err := st.CreateTenant(context.Background(), "anna-and-ben", map[string]any{
		model.FieldDisplayName: "Anna & Ben",
		model.FieldStatus:      status,
	})
	require.NoError(t, err)

	return &fixture{
		svc:      New(st, store.NewSlugIndex(table, nil), store.NewStatusIndex(table)),
		table:    table,
		store:    st,
		tenantID: tenant.TenantID,
		editor:   Identity{Subject: "couple", TenantID: tenant.TenantID, Capability: internaljwt.CapabilityEditor},
	}
}

func errorCode(err error) ErrorCode {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

func TestSettingsVersioning(t *testing.T) {
	f := newFixture(t, model.TenantStatusActive)
	ctx := context.Background()

	theme, err := f.svc.PutSettings(ctx, f.editor, f.tenantID, "theme", map[string]any{"palette": "sage"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), theme.Version)

	// Two editors both loaded version 1; only the first save lands.
	v1 := int64(1)
	_, err = f.svc.PutSettings(ctx, f.editor, f.tenantID, "theme", map[string]any{"palette": "rose"}, &v1)
	require.NoError(t, err)
	_, err = f.svc.PutSettings(ctx, f.editor, f.tenantID, "theme", map[string]any{"palette": "navy"}, &v1)
	assert.Equal(t, ErrorCodeConflict, errorCode(err))

	got, err := f.svc.GetSettings(ctx, f.editor, f.tenantID, "theme")
	require.NoError(t, err)
	assert.Equal(t, "rose", got.Payload["palette"])
	assert.Equal(t, int64(2), got.Version)

	// Without a version the last writer wins.
	_, err = f.svc.PutSettings(ctx, f.editor, f.tenantID, "theme", map[string]any{"palette": "gold"}, nil)
	require.NoError(t, err)

	_, err = f.svc.PutSettings(ctx, f.editor, f.tenantID, "details", map[string]any{"venue": "Old Mill"}, nil)
	require.NoError(t, err)
	all, err := f.svc.ListSettings(ctx, f.editor, f.tenantID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.PutSettings(ctx, f.editor, f.tenantID, "bad#section", map[string]any{}, nil)
	assert.Equal(t, ErrorCodeValidation, errorCode(err))

	_, err = f.svc.GetSettings(ctx, f.editor, f.tenantID, "missing")
	assert.Equal(t, ErrorCodeNotFound, errorCode(err))

	viewer := Identity{TenantID: f.tenantID, Capability: internaljwt.CapabilityViewer}
	_, err = f.svc.PutSettings(ctx, viewer, f.tenantID, "theme", map[string]any{}, nil)
	assert.Equal(t, ErrorCodeForbidden, errorCode(err))
}

func TestEntries(t *testing.T) {
	f := newFixture(t, model.TenantStatusActive)
	ctx := context.Background()

	for _, title := range []string{"ceremony", "dinner", "party"} {
		_, err := f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindScheduleEvent, "", map[string]any{"title": title}, nil)
		require.NoError(t, err)
	}
	img, err := f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindGalleryImage, "", map[string]any{"objectKey": "a.jpg"}, nil)
	require.NoError(t, err)

	first, err := f.svc.ListEntries(ctx, f.editor, f.tenantID, model.KindScheduleEvent, 2, "")
	require.NoError(t, err)
	assert.Len(t, first.Entries, 2)
	require.NotEmpty(t, first.NextCursor)

	rest, err := f.svc.ListEntries(ctx, f.editor, f.tenantID, model.KindScheduleEvent, 2, first.NextCursor)
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 1)
	assert.Empty(t, rest.NextCursor)

	_, err = f.svc.ListEntries(ctx, f.editor, f.tenantID, model.KindGalleryImage, 2, first.NextCursor)
	assert.Equal(t, ErrorCodeValidation, errorCode(err))

	_, err = f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindReservation, "", map[string]any{}, nil)
	assert.Equal(t, ErrorCodeValidation, errorCode(err))
	_, err = f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindGift, "", map[string]any{}, nil)
	assert.Equal(t, ErrorCodeValidation, errorCode(err))

	require.NoError(t, f.svc.DeleteEntry(ctx, f.editor, f.tenantID, model.KindGalleryImage, img.ID))
	assert.Equal(t, ErrorCodeNotFound, errorCode(f.svc.DeleteEntry(ctx, f.editor, f.tenantID, model.KindGalleryImage, img.ID)))
	assert.Equal(t, ErrorCodeValidation, errorCode(f.svc.DeleteEntry(ctx, f.editor, f.tenantID, model.KindTenant, f.tenantID)))
}

func TestRSVPs(t *testing.T) {
	f := newFixture(t, model.TenantStatusActive)
	ctx := context.Background()

	dora, err := f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Dora", Attendance: "Attending", GuestCount: 2})
	require.NoError(t, err)
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Emil", Attendance: "declined"})
	require.NoError(t, err)
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Finn"})
	require.NoError(t, err)

	attending, err := f.svc.ListRSVPs(ctx, f.editor, f.tenantID, model.AttendanceAttending, 0, "")
	require.NoError(t, err)
	require.Len(t, attending.Entries, 1)
	assert.Equal(t, "Dora", attending.Entries[0].Payload[model.FieldName])

	pending, err := f.svc.ListRSVPs(ctx, f.editor, f.tenantID, model.AttendancePending, 0, "")
	require.NoError(t, err)
	assert.Len(t, pending.Entries, 1)

	// Dora changes her mind.
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{ResponseID: dora.ID, Name: "Dora", Attendance: "declined"})
	require.NoError(t, err)

	declined, err := f.svc.ListRSVPs(ctx, f.editor, f.tenantID, model.AttendanceDeclined, 0, "")
	require.NoError(t, err)
	assert.Len(t, declined.Entries, 2)

	all, err := f.svc.ListRSVPs(ctx, f.editor, f.tenantID, "", 0, "")
	require.NoError(t, err)
	assert.Len(t, all.Entries, 3)

	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Gus", Attendance: "maybe"})
	assert.Equal(t, ErrorCodeValidation, errorCode(err))
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Attendance: "attending"})
	assert.Equal(t, ErrorCodeValidation, errorCode(err))
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Gus", GuestCount: -1})
	assert.Equal(t, ErrorCodeValidation, errorCode(err))

	_, err = f.svc.ListRSVPs(ctx, f.editor, f.tenantID, "maybe", 0, "")
	assert.Equal(t, ErrorCodeValidation, errorCode(err))
	_, err = f.svc.ListRSVPs(ctx, Identity{TenantID: "other", Capability: internaljwt.CapabilityOwner}, f.tenantID, "", 0, "")
	assert.Equal(t, ErrorCodeForbidden, errorCode(err))
}

func TestPublicSite(t *testing.T) {
	f := newFixture(t, model.TenantStatusActive)
	ctx := context.Background()

	_, err := f.svc.PutSettings(ctx, f.editor, f.tenantID, "details", map[string]any{"venue": "Old Mill"}, nil)
	require.NoError(t, err)
	_, err = f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindScheduleEvent, "", map[string]any{"title": "ceremony"}, nil)
	require.NoError(t, err)
	_, err = f.svc.PutEntry(ctx, f.editor, f.tenantID, model.KindGalleryImage, "", map[string]any{"objectKey": "a.jpg"}, nil)
	require.NoError(t, err)
	_, err = f.svc.SubmitRSVP(ctx, f.tenantID, RSVPParams{Name: "Dora"})
	require.NoError(t, err)

	site, err := f.svc.PublicSite(ctx, "Anna-And-Ben")
	require.NoError(t, err)
	assert.Equal(t, f.tenantID, site.Tenant.ID)
	assert.Equal(t, "Old Mill", site.Settings["details"].Payload["venue"])
	assert.Len(t, site.Schedule, 1)
	assert.Len(t, site.Gallery, 1)

	_, err = f.svc.PublicSite(ctx, "nobody")
	assert.Equal(t, ErrorCodeNotFound, errorCode(err))
}

func TestResolvePublicGatesOnStatus(t *testing.T) {
	tests := []struct {
		status string
		code   ErrorCode
	}{
		{model.TenantStatusActive, ""},
		{model.TenantStatusDraft, ErrorCodeNotFound},
		{model.TenantStatusArchived, ErrorCodeGone},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t, tt.status)
			_, err := f.svc.ResolvePublic(context.Background(), "anna-and-ben")
			assert.Equal(t, tt.code, errorCode(err))
		})
	}
}

type staleCache map[string]string

func (c staleCache) Get(_ context.Context, slug string) (string, error) {
	if id, ok := c[slug]; ok {
		return id, nil
	}
	return "", cache.ErrCacheMiss
}

func (c staleCache) Set(_ context.Context, slug, tenantID string) error {
	c[slug] = tenantID
	return nil
}

func (c staleCache) Delete(_ context.Context, slugs ...string) error {
	for _, slug := range slugs {
		delete(c, slug)
	}
	return nil
}

func TestResolvePublicIgnoresStaleCacheEntry(t *testing.T) {
	f := newFixture(t, model.TenantStatusActive)
	c := staleCache{"old-name": f.tenantID}
	svc := New(f.store, store.NewSlugIndex(f.table, c), store.NewStatusIndex(f.table))

	_, err := svc.ResolvePublic(context.Background(), "old-name")
	assert.Equal(t, ErrorCodeNotFound, errorCode(err))

	tenant, err := svc.ResolvePublic(context.Background(), "anna-and-ben")
	require.NoError(t, err)
	assert.Equal(t, f.tenantID, tenant.ID)
}
