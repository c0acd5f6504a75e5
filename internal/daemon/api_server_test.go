package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpanel/internal/api"
	"callpanel/internal/logging"
	"callpanel/internal/store"
	"callpanel/internal/testsupport"
)

type harness struct {
	t      *testing.T
	server *apiServer
	store  *store.Store
	token  string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	engine, st := testsupport.NewEngine(t, cfg, testsupport.NewClock())
	d, err := New(cfg, st, engine, logging.NewNop())
	require.NoError(t, err)
	return &harness{t: t, server: d.server, store: st, token: cfg.Paths.APIToken}
}

type actorHeaders struct {
	id, name string
}

var (
	alice = actorHeaders{id: "a", name: "Alice"}
	bob   = actorHeaders{id: "b", name: "Bob"}
)

func (h *harness) do(method, path string, actor actorHeaders, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor.id != "" {
		req.Header.Set(HeaderActorID, actor.id)
		req.Header.Set(HeaderActorName, actor.name)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) create(agent string) api.RecordDetail {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/records", actorHeaders{}, api.CreateRecordRequest{Agent: agent, Group: "north"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.RecordDetailResponse](h.t, rec).Detail
}

func TestHealthDoesNotRequireToken(t *testing.T) {
	h := newHarness(t, testsupport.WithAPIToken("s3cret"))
	h.token = ""

	rec := h.do(http.MethodGet, "/api/health", actorHeaders{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[api.HealthResponse](t, rec)
	assert.True(t, health.OK)
	assert.Equal(t, "callpaneld", health.Service)

	rec = h.do(http.MethodGet, "/api/records", actorHeaders{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[api.ErrorResponse](t, rec).Error.Code)

	h.token = "wrong"
	rec = h.do(http.MethodGet, "/api/records", actorHeaders{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	h.token = "s3cret"
	rec = h.do(http.MethodGet, "/api/records", actorHeaders{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/health", actorHeaders{}, nil)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	out := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(out, req)
	assert.Equal(t, "req-42", out.Header().Get(HeaderRequestID))
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	created := h.create("ana")
	assert.Equal(t, "draft", created.Record.Status)
	assert.Len(t, created.Filters, 3)

	path := "/api/records/" + jsonID(created.Record.ID)

	rec := h.do(http.MethodPost, path+"/filters/1/start", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[api.RecordDetailResponse](t, rec).Detail
	assert.Equal(t, "in_filter_1", detail.Record.Status)
	require.NotNil(t, detail.Lease)
	assert.Equal(t, "a", detail.Lease.Owner.ID)

	rec = h.do(http.MethodPost, path+"/lease/renew", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[api.LeaseResponse](t, rec).Lease.Filter)

	minutes := 30
	rec = h.do(http.MethodPost, path+"/filters/1/finish", alice, api.FinishRequest{NextDueMinutes: &minutes})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail = decode[api.RecordDetailResponse](t, rec).Detail
	assert.Equal(t, "draft", detail.Record.Status)
	assert.Equal(t, 2, detail.Record.CurrentFilter)
	assert.NotEmpty(t, detail.Record.NextDueAt)
	assert.Nil(t, detail.Lease)

	rec = h.do(http.MethodGet, "/api/records", actorHeaders{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[api.RecordListResponse](t, rec).Records
	require.Len(t, list, 1)
	assert.Equal(t, created.Record.ID, list[0].ID)

	rec = h.do(http.MethodGet, "/api/stats", actorHeaders{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[api.StatsResponse](t, rec)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Counts["draft"])

	rec = h.do(http.MethodPost, path+"/cancel", bob, api.CancelRequest{Reason: "customer hung up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail = decode[api.RecordDetailResponse](t, rec).Detail
	assert.Equal(t, "cancelled", detail.Record.Status)
	assert.Equal(t, "Bob", detail.Record.CancelledBy)
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t)
	created := h.create("ana")
	path := "/api/records/" + jsonID(created.Record.ID)

	rec := h.do(http.MethodPost, path+"/filters/1/start", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name   string
		method string
		path   string
		actor  actorHeaders
		body   any
		status int
		kind   string
		code   string
	}{
		{name: "unknown record", method: http.MethodGet, path: "/api/records/999", status: http.StatusNotFound, kind: "not_found", code: "not_found"},
		{name: "bad record id", method: http.MethodGet, path: "/api/records/abc", status: http.StatusBadRequest, kind: "validation", code: "bad_record_id"},
		{name: "bad filter index", method: http.MethodPost, path: path + "/filters/4/start", actor: bob, status: http.StatusBadRequest, kind: "validation", code: "bad_filter_n"},
		{name: "missing actor", method: http.MethodPost, path: path + "/filters/1/start", status: http.StatusBadRequest, kind: "validation", code: "actor_required"},
		{name: "locked by another", method: http.MethodPost, path: path + "/filters/1/start", actor: bob, status: http.StatusConflict, kind: "conflict", code: "locked"},
		{name: "holder starts another filter", method: http.MethodPost, path: path + "/filters/3/start", actor: alice, status: http.StatusConflict, kind: "conflict", code: "already_in_filter"},
		{name: "finish by non-owner", method: http.MethodPost, path: path + "/filters/1/finish", actor: bob, status: http.StatusForbidden, kind: "forbidden", code: "not_lock_owner"},
		{name: "finish wrong filter", method: http.MethodPost, path: path + "/filters/2/finish", actor: alice, status: http.StatusConflict, kind: "conflict", code: "not_in_that_filter"},
		{name: "renew by non-owner", method: http.MethodPost, path: path + "/lease/renew", actor: bob, status: http.StatusForbidden, kind: "forbidden", code: "not_lock_owner"},
		{name: "short reason", method: http.MethodPost, path: path + "/cancel", actor: bob, body: api.CancelRequest{Reason: " x "}, status: http.StatusBadRequest, kind: "validation", code: "reason_required"},
		{name: "missing agent", method: http.MethodPost, path: "/api/records", body: api.CreateRecordRequest{Agent: "  "}, status: http.StatusBadRequest, kind: "validation", code: "agent_required"},
		{name: "unknown route", method: http.MethodGet, path: "/api/nothing", status: http.StatusNotFound, kind: "not_found", code: "route_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, tt.actor, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[api.ErrorResponse](t, rec).Error
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestConflictCarriesHolderAndState(t *testing.T) {
	h := newHarness(t)
	created := h.create("ana")
	path := "/api/records/" + jsonID(created.Record.ID)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, path+"/filters/1/start", alice, nil).Code)

	rec := h.do(http.MethodPost, path+"/filters/1/start", bob, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[api.ErrorResponse](t, rec).Error
	assert.Equal(t, "in_filter_1", body.Status)
	assert.Equal(t, []string{"in_progress", "not_started", "not_started"}, body.Filters)
	require.NotNil(t, body.Holder)
	assert.Equal(t, "Alice", body.Holder.Owner.Name)
	assert.Equal(t, 1, body.Holder.Filter)
}

func TestSequenceBlockedWithoutLease(t *testing.T) {
	h := newHarness(t)
	created := h.create("ana")
	path := "/api/records/" + jsonID(created.Record.ID)

	rec := h.do(http.MethodPost, path+"/filters/2/start", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[api.ErrorResponse](t, rec).Error
	assert.Equal(t, "sequence_blocked", body.Code)
	assert.Equal(t, "draft", body.Status)
	assert.Nil(t, body.Holder)
}

func TestInternalErrorsAreNotExposed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	rec := h.do(http.MethodGet, "/api/records", actorHeaders{}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[api.ErrorResponse](t, rec).Error
	assert.Equal(t, "internal", body.Kind)
	assert.Equal(t, "internal error", body.Message)
	assert.False(t, strings.Contains(rec.Body.String(), "sql"))
}

func TestMalformedBodyIsRejected(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[api.ErrorResponse](t, rec).Error.Code)
}

func jsonID(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
