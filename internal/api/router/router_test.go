package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wedding-site-backend/internal/api"
	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/dto"
	internaljwt "wedding-site-backend/internal/jwt"
	"wedding-site-backend/internal/model"
	"wedding-site-backend/internal/queue"
	"wedding-site-backend/internal/websocket"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	adminPrefix  = "/api/admin/v1"
	publicPrefix = "/api/public/v1"
	wsPrefix     = "/api/ws/v1"
)

type testServer struct {
	handler http.Handler
	admin   string
}

func newTestServer(t *testing.T, notifier *websocket.RedisPublisher, live *websocket.Handler) *testServer {
	t.Helper()

	opts := api.BackendOptions{
		JWTSecret:  testSecret,
		Registerer: prometheus.NewRegistry(),
		Ledger: config.RetryConfig{
			MaxAttempts:     25,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
	if notifier != nil {
		opts.Notifier = notifier
	}
	backend := api.NewBackend(database.NewMemoryDatabase(), opts)

	rqm := queue.NewRequestQueueManager(32, 4)
	t.Cleanup(rqm.Shutdown)

	server := api.NewAPIServer(":0", rqm, backend, live,
		UtilsRoutes(adminPrefix),
		TenantRoutes(adminPrefix),
		RegistryRoutes(adminPrefix),
		ContentRoutes(adminPrefix),
		RegistryPublicRoutes(publicPrefix),
		ContentPublicRoutes(publicPrefix),
		LiveRoutes(wsPrefix),
	)

	return &testServer{
		handler: server.Routes(),
		admin:   bearer(t, internaljwt.Identity{Subject: "ops", Capability: internaljwt.CapabilityAdmin}),
	}
}

func bearer(t *testing.T, identity internaljwt.Identity) string {
	t.Helper()
	token, err := internaljwt.CreateToken(identity, testSecret, 0)
	require.NoError(t, err)
	return "Bearer " + token
}

type call struct {
	method  string
	path    string
	auth    string
	body    any
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// site creates a tenant and returns it along with an owner token.
func (s *testServer) site(t *testing.T, slug, status string) (dto.TenantResponse, string) {
	t.Helper()

	rec := s.do(t, call{method: http.MethodPost, path: adminPrefix + "/tenants", auth: s.admin,
		body: dto.CreateTenantRequest{Slug: slug, DisplayName: "Ana & Ben", EventDate: "2027-06-12"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tenant := decode[dto.TenantResponse](t, rec)
	assert.Equal(t, model.TenantStatusDraft, tenant.Status)

	owner := bearer(t, internaljwt.Identity{Subject: "couple", TenantID: tenant.ID, Capability: internaljwt.CapabilityOwner})
	if status != model.TenantStatusDraft {
		rec = s.do(t, call{method: http.MethodPut, path: adminPrefix + "/tenants/" + tenant.ID + "/status", auth: owner,
			body: dto.SetTenantStatusRequest{Status: status}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		tenant = decode[dto.TenantResponse](t, rec)
	}
	return tenant, owner
}

func (s *testServer) gift(t *testing.T, tenantID, owner, name string, total int64) dto.GiftResponse {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: adminPrefix + "/tenants/" + tenantID + "/gifts", auth: owner,
		body: dto.CreateGiftRequest{Name: name, TotalQuantity: total, Details: map[string]any{"store": "Acme"}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.GiftResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, call{method: http.MethodGet, path: adminPrefix + "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGuestClaimFlow(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)
	gift := s.gift(t, tenant.ID, owner, "Stand mixer", 2)
	assert.Equal(t, map[string]any{"store": "Acme"}, gift.Details)

	claimPath := publicPrefix + "/sites/ana-and-ben/gifts/" + gift.ID + "/claims"
	claim := call{method: http.MethodPost, path: claimPath,
		body:    dto.ClaimGiftRequest{Quantity: 2, ClaimantContact: "aunt@example.com"},
		headers: map[string]string{"Idempotency-Key": "guest-key-1"}}

	rec := s.do(t, claim)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[dto.ClaimGiftResponse](t, rec)
	assert.False(t, first.Replayed)
	assert.Equal(t, int64(0), first.Gift.Remaining)
	assert.Equal(t, model.GiftStatusFullyReserved, first.Gift.Status)

	rec = s.do(t, claim)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decode[dto.ClaimGiftResponse](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Reservation.ClaimID, replay.Reservation.ClaimID)

	rec = s.do(t, call{method: http.MethodPost, path: claimPath, body: dto.ClaimGiftRequest{Quantity: 1}})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "sold_out", decode[api.ApiError](t, rec).Code)

	rec = s.do(t, call{method: http.MethodGet, path: publicPrefix + "/sites/ana-and-ben/gifts?status=" + model.GiftStatusFullyReserved})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.GiftListResponse](t, rec)
	require.Len(t, list.Gifts, 1)
	assert.Equal(t, gift.ID, list.Gifts[0].ID)

	rec = s.do(t, call{method: http.MethodDelete, path: claimPath + "/" + first.Reservation.ClaimID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	released := decode[dto.UnclaimGiftResponse](t, rec)
	assert.True(t, released.Removed)
	assert.Equal(t, int64(2), released.Gift.Remaining)

	rec = s.do(t, call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID + "/gifts/" + gift.ID + "/reconcile", auth: owner})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[dto.ReconcileResponse](t, rec)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(0), report.Reserved)
}

func TestPublicSiteVisibilityFollowsStatus(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.site(t, "still-drafting", model.TenantStatusDraft)
	s.site(t, "long-ago", model.TenantStatusArchived)
	s.site(t, "live-site", model.TenantStatusActive)

	tests := []struct {
		slug string
		want int
	}{
		{slug: "still-drafting", want: http.StatusNotFound},
		{slug: "long-ago", want: http.StatusGone},
		{slug: "live-site", want: http.StatusOK},
		{slug: "Live-Site", want: http.StatusOK},
		{slug: "nobody", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			rec := s.do(t, call{method: http.MethodGet, path: publicPrefix + "/sites/" + tt.slug})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPublicSiteIncludesContent(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)
	base := adminPrefix + "/tenants/" + tenant.ID

	rec := s.do(t, call{method: http.MethodPut, path: base + "/settings/theme", auth: owner,
		body: dto.PutEntryRequest{Payload: map[string]any{"color": "sage"}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodPost, path: base + "/schedule", auth: owner,
		body: dto.PutEntryRequest{Payload: map[string]any{"title": "Ceremony"}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: publicPrefix + "/sites/ana-and-ben"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	site := decode[dto.PublicSiteResponse](t, rec)
	assert.Equal(t, "Ana & Ben", site.DisplayName)
	assert.Equal(t, "sage", site.Settings["theme"].Payload["color"])
	require.Len(t, site.Schedule, 1)
	assert.Equal(t, "Ceremony", site.Schedule[0].Payload["title"])
	assert.Empty(t, site.Gallery)
}

func TestRSVPSubmitAndFilter(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)

	for _, req := range []dto.SubmitRSVPRequest{
		{Name: "Carla", Attendance: "attending", GuestCount: 2},
		{Name: "Dev", Attendance: "declined"},
	} {
		rec := s.do(t, call{method: http.MethodPost, path: publicPrefix + "/sites/ana-and-ben/rsvps", body: req})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(t, call{method: http.MethodPost, path: publicPrefix + "/sites/ana-and-ben/rsvps",
		body: dto.SubmitRSVPRequest{Name: "Eve", Attendance: "maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID + "/rsvps?attendance=attending", auth: owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[dto.EntryListResponse](t, rec)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "Carla", list.Entries[0].Payload["name"])
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)
	other, _ := s.site(t, "carla-and-dev", model.TenantStatusActive)
	viewer := bearer(t, internaljwt.Identity{Subject: "planner", TenantID: tenant.ID, Capability: internaljwt.CapabilityViewer})

	tests := []struct {
		name string
		call call
		want int
	}{
		{name: "no token", call: call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID}, want: http.StatusUnauthorized},
		{name: "garbage token", call: call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID, auth: "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "other tenant", call: call{method: http.MethodGet, path: adminPrefix + "/tenants/" + other.ID, auth: owner}, want: http.StatusForbidden},
		{name: "viewer cannot create gifts", call: call{method: http.MethodPost, path: adminPrefix + "/tenants/" + tenant.ID + "/gifts", auth: viewer,
			body: dto.CreateGiftRequest{Name: "Vase", TotalQuantity: 1}}, want: http.StatusForbidden},
		{name: "owner cannot list all tenants", call: call{method: http.MethodGet, path: adminPrefix + "/tenants", auth: owner}, want: http.StatusForbidden},
		{name: "admin lists tenants", call: call{method: http.MethodGet, path: adminPrefix + "/tenants?status=active", auth: s.admin}, want: http.StatusOK},
		{name: "viewer reads own site", call: call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID, auth: viewer}, want: http.StatusOK},
		{name: "method not allowed", call: call{method: http.MethodPut, path: adminPrefix + "/tenants", auth: s.admin}, want: http.StatusMethodNotAllowed},
		{name: "bad limit", call: call{method: http.MethodGet, path: adminPrefix + "/tenants/" + tenant.ID + "/gifts?limit=-1", auth: owner}, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.call)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)
	path := adminPrefix + "/tenants/" + tenant.ID
	name := "Ana and Ben"

	rec := s.do(t, call{method: http.MethodPatch, path: path, auth: owner,
		body:    dto.UpdateTenantRequest{DisplayName: &name},
		headers: map[string]string{"If-Match": `"1"`}})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decode[api.ApiError](t, rec).Code)

	current := tenant.Version
	rec = s.do(t, call{method: http.MethodPatch, path: path, auth: owner,
		body: dto.UpdateTenantRequest{DisplayName: &name, ExpectedVersion: &current}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[dto.TenantResponse](t, rec)
	assert.Equal(t, name, updated.DisplayName)
	assert.Equal(t, current+1, updated.Version)
}

func TestSlugRenameFreesOldSlug(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)

	rec := s.do(t, call{method: http.MethodPut, path: adminPrefix + "/tenants/" + tenant.ID + "/slug", auth: owner,
		body: dto.RenameSlugRequest{Slug: "ana-ben-2027"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: adminPrefix + "/slugs/ana-ben-2027", auth: owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, tenant.ID, decode[dto.TenantResponse](t, rec).ID)

	assert.Equal(t, http.StatusNotFound, s.do(t, call{method: http.MethodGet, path: publicPrefix + "/sites/ana-and-ben"}).Code)

	rec = s.do(t, call{method: http.MethodPost, path: adminPrefix + "/tenants", auth: s.admin,
		body: dto.CreateTenantRequest{Slug: "ana-and-ben", DisplayName: "Someone else"}})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodPost, path: adminPrefix + "/tenants", auth: s.admin,
		body: dto.CreateTenantRequest{Slug: "ana-ben-2027", DisplayName: "Taken"}})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestLiveRegistryStreamsClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := websocket.NewHub(prometheus.NewRegistry())
	go hub.Run(ctx)
	live := websocket.NewHandler(hub, client, nil)
	go func() { _ = live.Subscribe(ctx) }()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	s := newTestServer(t, websocket.NewRedisPublisher(client), live)
	tenant, owner := s.site(t, "ana-and-ben", model.TenantStatusActive)
	gift := s.gift(t, tenant.ID, owner, "Teapot", 3)

	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + wsPrefix + "/sites/ana-and-ben/registry/live"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return len(hub.Rooms(context.Background())) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := s.do(t, call{method: http.MethodPost, path: publicPrefix + "/sites/ana-and-ben/gifts/" + gift.ID + "/claims",
		body: dto.ClaimGiftRequest{Quantity: 1}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg websocket.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, tenant.ID, msg.RoomID)

	var event websocket.GiftEvent
	require.NoError(t, json.Unmarshal(msg.Content, &event))
	assert.Equal(t, gift.ID, event.GiftID)
	assert.Equal(t, int64(1), event.ReservedQuantity)
	assert.Equal(t, int64(2), event.Remaining)

	_, resp, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+wsPrefix+"/sites/nobody/registry/live", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
