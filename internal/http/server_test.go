package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/middleware/trace"
	"tracker/internal/services"
	"tracker/internal/store/memory"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type brokenRecords struct{}

func (brokenRecords) Create(context.Context, core.NewRecord) (core.Record, error) {
	return core.Record{}, core.NewStorageError("insert record", errors.New("disk on fire"))
}
func (brokenRecords) Get(context.Context, uuid.UUID) (core.Record, error) {
	return core.Record{}, errors.New("unexpected")
}
func (brokenRecords) Delete(context.Context, uuid.UUID) error { return nil }
func (brokenRecords) List(context.Context, core.RecordFilter) ([]core.Record, error) {
	return nil, nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	backend := memory.New()
	users := services.NewUserService(backend)
	categories := services.NewCategoryService(backend)
	return Deps{
		Users:              users,
		Categories:         categories,
		Records:            services.NewRecordService(backend, users, categories),
		Health:             backend,
		Logger:             log.New(log.Config{Output: io.Discard}),
		RateLimitPerMinute: 10000,
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// createNamed posts {singular: {name}} and returns the new id.
func createNamed(t *testing.T, srv *Server, plural, singular, name string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/"+plural, `{"`+singular+`":{"name":"`+name+`"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entity := decode(t, rec)[singular].(map[string]any)
	return entity["id"].(string)
}

func createRecord(t *testing.T, srv *Server, userID, categoryID, sum string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"record":{"userId":"` + userID + `","categoryId":"` + categoryID + `","sum":` + sum + `}}`
	return do(t, srv, http.MethodPost, "/records", body)
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	rec := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the expense tracker!", rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","services":{"db":"up"}}`, rec.Body.String())
}

func TestHealthUnhealthy(t *testing.T) {
	deps := testDeps(t)
	deps.Health = fakePinger{err: errors.New("connection refused")}
	srv := newTestServer(t, deps)

	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","services":{"db":"down"}}`, rec.Body.String())
}

func TestUsersAndCategories(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	for _, res := range []struct{ plural, singular string }{{"users", "user"}, {"categories", "category"}} {
		t.Run(res.plural, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/"+res.plural, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"`+res.plural+`":[]}`, rec.Body.String())

			id := createNamed(t, srv, res.plural, res.singular, "  Food  ")

			rec = do(t, srv, http.MethodGet, "/"+res.plural+"/"+id, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"`+res.singular+`":{"id":"`+id+`","name":"Food"}}`, rec.Body.String())

			rec = do(t, srv, http.MethodGet, "/"+res.plural, "")
			assert.JSONEq(t, `{"`+res.plural+`":[{"id":"`+id+`","name":"Food"}]}`, rec.Body.String())

			rec = do(t, srv, http.MethodDelete, "/"+res.plural+"/"+id, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Body.String())

			rec = do(t, srv, http.MethodGet, "/"+res.plural+"/"+id, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())

			rec = do(t, srv, http.MethodDelete, "/"+res.plural+"/"+id, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestCreateNamed_Rejections(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{name: "blank name", body: `{"user":{"name":"   "}}`, status: http.StatusUnprocessableEntity, want: `{"errors":{"name":"name is empty"}}`},
		{name: "missing envelope", body: `{}`, status: http.StatusUnprocessableEntity, want: `{"errors":{"name":"name is empty"}}`},
		{name: "malformed json", body: `{"user":`, status: http.StatusBadRequest, want: `{"error":"Bad Request"}`},
		{name: "wrong shape", body: `{"user":"alice"}`, status: http.StatusBadRequest, want: `{"error":"Bad Request"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/users", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}

	rec := do(t, srv, http.MethodGet, "/users", "")
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())
}

func TestMalformedIDs(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	for _, target := range []string{"/users/nope", "/categories/123", "/records/zzz"} {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			rec := do(t, srv, method, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %s", method, target)
		}
	}

	rec := do(t, srv, http.MethodGet, "/records?userId=not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRecord_Validation(t *testing.T) {
	srv := newTestServer(t, testDeps(t))
	userID := createNamed(t, srv, "users", "user", "alice")
	categoryID := createNamed(t, srv, "categories", "category", "food")
	missing := uuid.NewString()

	tests := []struct {
		name       string
		userID     string
		categoryID string
		sum        string
		want       map[string]string
	}{
		{name: "everything wrong", userID: missing, categoryID: missing, sum: `"-1"`, want: map[string]string{
			"userId": "user doesn't exist", "categoryId": "category doesn't exist", "sum": "sum is not positive",
		}},
		{name: "missing user", userID: missing, categoryID: categoryID, sum: `"5"`, want: map[string]string{"userId": "user doesn't exist"}},
		{name: "missing category", userID: userID, categoryID: missing, sum: `5`, want: map[string]string{"categoryId": "category doesn't exist"}},
		{name: "zero sum", userID: userID, categoryID: categoryID, sum: `0`, want: map[string]string{"sum": "sum is not positive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createRecord(t, srv, tt.userID, tt.categoryID, tt.sum)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			var body struct {
				Errors map[string]string `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Errors)
		})
	}

	rec := do(t, srv, http.MethodGet, "/records", "")
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/records", `{"record":{"userId":"bogus"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndToEndScenario(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	userID := createNamed(t, srv, "users", "user", "alice")
	categoryID := createNamed(t, srv, "categories", "category", "food")

	rec := createRecord(t, srv, userID, categoryID, `"12.50"`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	record := decode(t, rec)["record"].(map[string]any)
	assert.Equal(t, userID, record["userId"])
	assert.Equal(t, categoryID, record["categoryId"])
	assert.Equal(t, "12.5", record["sum"])
	assert.NotEmpty(t, record["createdAt"])
	recordID := record["id"].(string)

	rec = do(t, srv, http.MethodGet, "/records?userId="+userID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode(t, rec)["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, recordID, records[0].(map[string]any)["id"])

	rec = do(t, srv, http.MethodGet, "/records/"+recordID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/users/"+userID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = createRecord(t, srv, userID, categoryID, `"5"`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"errors":{"userId":"user doesn't exist"}}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/records/"+recordID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "records cascade with their user")
}

func TestListRecords_Filters(t *testing.T) {
	srv := newTestServer(t, testDeps(t))
	alice := createNamed(t, srv, "users", "user", "alice")
	bob := createNamed(t, srv, "users", "user", "bob")
	food := createNamed(t, srv, "categories", "category", "food")
	rent := createNamed(t, srv, "categories", "category", "rent")

	for _, pair := range [][2]string{{alice, food}, {alice, rent}, {bob, food}, {bob, food}} {
		require.Equal(t, http.StatusCreated, createRecord(t, srv, pair[0], pair[1], `"1"`).Code)
	}

	count := func(query string) int {
		rec := do(t, srv, http.MethodGet, "/records"+query, "")
		require.Equal(t, http.StatusOK, rec.Code)
		return len(decode(t, rec)["records"].([]any))
	}

	assert.Equal(t, 4, count(""))
	assert.Equal(t, 2, count("?userId="+alice))
	assert.Equal(t, 3, count("?categoryId="+food))
	assert.Equal(t, 2, count("?userId="+bob+"&categoryId="+food))
	assert.Equal(t, 0, count("?userId="+bob+"&categoryId="+rent))
	assert.Equal(t, 4, count("?userId="))
}

func TestDeleteRecord(t *testing.T) {
	srv := newTestServer(t, testDeps(t))
	userID := createNamed(t, srv, "users", "user", "alice")
	categoryID := createNamed(t, srv, "categories", "category", "food")
	rec := createRecord(t, srv, userID, categoryID, `"3.30"`)
	recordID := decode(t, rec)["record"].(map[string]any)["id"].(string)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/records/"+recordID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/records/"+recordID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/records/"+recordID, "").Code)
}

func TestStorageFailuresAreGeneric(t *testing.T) {
	deps := testDeps(t)
	deps.Records = brokenRecords{}
	srv := newTestServer(t, deps)

	rec := createRecord(t, srv, uuid.NewString(), uuid.NewString(), `"1"`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	rec = do(t, srv, http.MethodGet, "/records/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, srv, http.MethodGet, "/records", "")
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	rec := do(t, srv, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestMiddlewareIsApplied(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	rec := do(t, srv, http.MethodGet, "/users", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get(trace.RequestIDHeader), "req_"))
}

func TestRateLimit(t *testing.T) {
	deps := testDeps(t)
	deps.RateLimitPerMinute = 2
	srv := newTestServer(t, deps)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/users", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/users", "").Code)

	rec := do(t, srv, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, rec.Body.String())
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := NewServer(":0", testDeps(t))
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestCreateRecord_LocationAndCommaSum(t *testing.T) {
	srv := newTestServer(t, testDeps(t))
	userID := createNamed(t, srv, "users", "user", "alice")
	categoryID := createNamed(t, srv, "categories", "category", "food")

	rec := createRecord(t, srv, userID, categoryID, `"12,50"`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	record := decode(t, rec)["record"].(map[string]any)
	assert.Equal(t, "12.5", record["sum"])
	assert.Equal(t, "/records/"+record["id"].(string), rec.Header().Get("Location"))
}

func TestHandlerLogsCarryRequestIDAndComponent(t *testing.T) {
	var buf bytes.Buffer
	deps := testDeps(t)
	deps.Logger = log.New(log.Config{Format: "json", Output: &buf})
	deps.Records = brokenRecords{}
	srv := newTestServer(t, deps)

	rec := do(t, srv, http.MethodGet, "/records/"+uuid.NewString(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var failure map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "Request failed" {
			failure = entry
		}
	}
	require.NotNil(t, failure, "no failure log in %s", buf.String())
	assert.Equal(t, log.ComponentHTTP, failure[log.FieldComponent])
	assert.Equal(t, rec.Header().Get(trace.RequestIDHeader), failure[log.FieldRequestID])
}
