//go:build integration

package router_test

// End-to-end tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/infra"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/router"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

type testEnv struct {
	server *httptest.Server
	svcs   *router.Services
	db     *gorm.DB
	tokens map[string]string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("analytics_test"),
		tcPostgres.WithUsername("analytics"),
		tcPostgres.WithPassword("analytics"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                    "test",
		WorkerPoolSize:         2,
		RateLimitPerMinute:     10000,
		DatabaseURL:            pgURL,
		RedisURL:               rdURL,
		JWTSecret:              "integration_secret_32_characters!",
		JWTExpirationHours:     1,
		BusinessTimezone:       "Europe/Moscow",
		SegmentRecencyDays:     90,
		VIPVisits:              5,
		AggregationConcurrency: 4,
		MetricsCacheTTLSeconds: 60,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(infra.RedisOptions{URL: cfg.RedisURL, PoolSize: 8, Timeout: 2 * time.Second})
	require.NoError(t, err)

	svcs := router.NewServices(cfg, db, rdb)
	srv := httptest.NewServer(router.New(cfg, db, rdb, svcs))
	t.Cleanup(srv.Close)

	workerCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	worker.StartWorkerPool(workerCtx, rdb, cfg.WorkerPoolSize, worker.Processor{Ingest: svcs.Ingest, Metrics: svcs.Metrics})

	tokens := map[string]string{}
	for _, role := range []string{service.RoleAdmin, service.RoleIngestor, service.RoleReporter, service.RoleScheduler} {
		tok, err := svcs.Auth.MintToken(dto.MintTokenRequest{Subject: "e2e-" + role, Role: role})
		require.NoError(t, err)
		tokens[role] = tok.AccessToken
	}
	return &testEnv{server: srv, svcs: svcs, db: db, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, role string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) createChannel(t *testing.T, name, cost string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/channels",
		map[string]any{"name": name, "cost_per_month": cost}, service.RoleAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ch dto.ChannelResponse
	decodeJSON(t, resp, &ch)
	return ch.ID
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_LeadVisitRecompute(t *testing.T) {
	env := setupTestEnv(t)
	vk := env.createChannel(t, "VK", "25000")

	resp := env.do(t, http.MethodPost, "/v1/events", dto.EventRequest{
		EventType: "lead", Phone: "+7 (999) 123-45-67", Name: "Ivan", ChannelName: "VK", Date: "2026-03-15 10:00",
	}, service.RoleIngestor)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	amount := decimal.NewFromInt(5000)
	resp = env.do(t, http.MethodPost, "/v1/events", dto.EventRequest{
		EventType: "visit", Phone: "89991234567", Amount: &amount, Date: "2026-03-15 21:00",
	}, service.RoleIngestor)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var visit dto.EventResult
	decodeJSON(t, resp, &visit)
	require.NotNil(t, visit.ClientID)

	resp = env.do(t, http.MethodGet, "/v1/clients?phone=8-999-123-45-67", nil, service.RoleReporter)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var client dto.ClientResponse
	decodeJSON(t, resp, &client)
	assert.Equal(t, *visit.ClientID, client.ID)
	assert.Equal(t, 1, client.TotalVisits)
	require.NotNil(t, client.ChannelID)
	assert.Equal(t, vk, *client.ChannelID)

	resp = env.do(t, http.MethodPost, "/v1/metrics/recompute",
		dto.RecomputeRequest{ChannelID: &vk, Date: "2026-03-15"}, service.RoleScheduler)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m dto.ChannelMetricResponse
	decodeJSON(t, resp, &m)
	assert.Equal(t, 1, m.LeadsCount)
	assert.Equal(t, 1, m.ClientsCount)
	assert.True(t, m.Revenue.Equal(amount), m.Revenue.String())
	assert.True(t, m.Cost.Equal(decimal.RequireFromString("806.45")), m.Cost.String())

	// reporter may read metrics but not recompute them
	resp = env.do(t, http.MethodPost, "/v1/metrics/recompute",
		dto.RecomputeRequest{ChannelID: &vk, Date: "2026-03-15"}, service.RoleReporter)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodGet, "/v1/channels/"+vk+"/metrics?from=2026-03-15&to=2026-03-15", nil, service.RoleReporter)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Data  []dto.ChannelMetricResponse `json:"data"`
			Total int                         `json:"total"`
		}
		decodeJSON(t, resp, &list)
		assert.Equal(t, 1, list.Total)
	}
}

func TestE2E_ConcurrentVisitsKeepAggregates(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	client, _, err := env.svcs.Clients.Register(ctx, dto.RegisterClientRequest{Phone: "+79990001122", Name: "Anna"})
	require.NoError(t, err)
	clientID := uuid.MustParse(client.ID)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svcs.Ledger.RecordVisit(ctx, clientID, &model.Visit{
				VisitDate:   time.Date(2026, 3, 1+i%10, 19, 0, 0, 0, time.UTC),
				Amount:      decimal.NewFromInt(100),
				Kind:        model.VisitRegular,
				GuestsCount: 1,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := env.svcs.Clients.Get(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, n, got.TotalVisits)
	assert.True(t, got.TotalRevenue.Equal(decimal.NewFromInt(100*n)), got.TotalRevenue.String())
	assert.Equal(t, string(model.SegmentVIP), got.Segment)
}

func TestE2E_ConcurrentReserveResendsApplyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	amount := decimal.NewFromInt(3000)
	ev := dto.EventRequest{
		EventType: "reserve", ReserveID: "R-77", Status: "closed", Amount: &amount,
		Phone: "+7 999 777 66 55", Date: "2026-03-14 20:00",
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.svcs.Ingest.Ingest(ctx, ev)
		}()
	}
	wg.Wait()

	var visits int64
	require.NoError(t, env.db.Model(&model.Visit{}).Where("reserve_id = ?", "R-77").Count(&visits).Error)
	assert.Equal(t, int64(1), visits)

	res, err := env.svcs.Ingest.Ingest(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeDuplicate, res.Outcome)
}

func TestE2E_BatchIngestThroughQueue(t *testing.T) {
	env := setupTestEnv(t)
	env.createChannel(t, "Site", "10000")

	events := []dto.EventRequest{
		{EventType: "lead", Phone: "+79990000001", ChannelName: "Site", Date: "2026-03-10"},
		{EventType: "lead", Phone: "+79990000002", ChannelName: "Site", Date: "2026-03-10"},
		{EventType: "lead", Email: "guest@example.com", ChannelName: "Site", Date: "2026-03-11"},
	}
	resp := env.do(t, http.MethodPost, "/v1/events/batch", dto.BatchEventsRequest{Events: events}, service.RoleIngestor)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		var n int64
		env.db.Model(&model.Lead{}).Count(&n)
		return n == int64(len(events))
	}, 20*time.Second, 200*time.Millisecond)
}

func TestE2E_UniqueConstraints(t *testing.T) {
	env := setupTestEnv(t)
	env.createChannel(t, "Instagram", "15000")

	resp := env.do(t, http.MethodPost, "/v1/channels",
		map[string]any{"name": "Instagram", "cost_per_month": "1"}, service.RoleAdmin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	err := env.db.Create(&model.Client{ID: uuid.New(), Phone: ptr("+79991112233"), Segment: model.SegmentNew}).Error
	require.NoError(t, err)
	err = env.db.Create(&model.Client{ID: uuid.New(), Phone: ptr("+79991112233"), Segment: model.SegmentNew}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func ptr[T any](v T) *T { return &v }

func TestE2E_TargetedClientWritesKeepLedger(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	amount := decimal.NewFromInt(100)
	resp := env.do(t, http.MethodPost, "/v1/events", dto.EventRequest{
		EventType: "visit", Phone: "+79990101010", Amount: &amount, Date: time.Now().AddDate(0, 0, -5).Format("2006-01-02 15:04"),
	}, service.RoleIngestor)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first dto.EventResult
	decodeJSON(t, resp, &first)
	id := uuid.MustParse(*first.ClientID)

	clients := repository.NewClientRepository(env.db)
	stale, err := clients.FindByID(ctx, id)
	require.NoError(t, err)

	// a visit commits after the snapshot was taken
	_, err = env.svcs.Ledger.RecordVisit(ctx, id, &model.Visit{
		VisitDate: time.Now().Add(-48 * time.Hour), Amount: amount,
	})
	require.NoError(t, err)

	name := "Marina"
	require.NoError(t, clients.FillContact(ctx, nil, id, repository.ContactPatch{Name: &name}, time.Now()))
	ok, err := clients.UpdateSegment(ctx, stale, model.SegmentLost, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "a segment classified from the old snapshot must not land")

	got, err := clients.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalVisits)
	assert.True(t, got.TotalRevenue.Equal(decimal.NewFromInt(200)), got.TotalRevenue.String())
	assert.Equal(t, "Marina", *got.Name)
	assert.Equal(t, model.SegmentReturning, got.Segment)

	// a fresh snapshot matches and the write lands
	ok, err = clients.UpdateSegment(ctx, got, model.SegmentLost, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	other := "Olga"
	require.NoError(t, clients.FillContact(ctx, nil, id, repository.ContactPatch{Name: &other}, time.Now()))
	got, _ = clients.FindByID(ctx, id)
	assert.Equal(t, "Marina", *got.Name, "populated contact fields are never overwritten")
}
