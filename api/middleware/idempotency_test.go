package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, taken := f.data[key]; taken {
		return false, nil
	}
	f.data[key], _ = value.(string)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

// post sends a POST for pattern through h with an optional Idempotency-Key.
func post(h http.Handler, pattern, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, pattern, strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code
}

func TestRequiresIdempotency(t *testing.T) {
	guarded := map[string]string{
		"/api/v1/reservations":                         http.MethodPost,
		"/api/v1/reservations/{reservationId}/confirm": http.MethodPost,
		"/api/v1/calendar":                             http.MethodPost,
		"/api/v1/inventory/items":                      http.MethodPost,
		"/api/v1/inventory/items/{itemId}/adjust":      http.MethodPost,
	}
	for pattern, method := range guarded {
		if !requiresIdempotency(method, pattern) {
			t.Fatalf("%s %s should require a key", method, pattern)
		}
	}

	open := [][2]string{
		{http.MethodDelete, "/api/v1/reservations/{reservationId}"},
		{http.MethodPost, "/api/v1/availability/check"},
		{http.MethodGet, "/api/v1/reservations"},
		{http.MethodPost, ""},
	}
	for _, tc := range open {
		if requiresIdempotency(tc[0], tc[1]) {
			t.Fatalf("%s %s should not require a key", tc[0], tc[1])
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	ran := false
	h := Idempotency(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	rec := post(h, "/api/v1/reservations", "", `{"lines":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if ran {
		t.Fatalf("handler ran without an idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	calls := 0
	h := Idempotency(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r-1"}`))
	}))

	first := post(h, "/api/v1/reservations", "abc", `{"lines":[1]}`)
	if first.Code != http.StatusCreated || first.Header().Get(IdempotentReplayHeader) != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}

	replay := post(h, "/api/v1/reservations", "abc", `{"lines":[1]}`)
	switch {
	case replay.Code != http.StatusCreated:
		t.Fatalf("expected replayed 201 got %d", replay.Code)
	case replay.Header().Get("Content-Type") != "application/json":
		t.Fatalf("content type not replayed")
	case replay.Header().Get(IdempotentReplayHeader) != "true":
		t.Fatalf("replay marker missing")
	case replay.Body.String() != `{"id":"r-1"}`:
		t.Fatalf("unexpected replay body %s", replay.Body.String())
	case calls != 1:
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	h := Idempotency(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post(h, "/api/v1/reservations", "xyz", `{"lines":[1]}`)
	rec := post(h, "/api/v1/reservations", "xyz", `{"lines":[2]}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyMiddlewareDoesNotPinFailures(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	if rec := post(h, "/api/v1/calendar", "retry-me", `{}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("claim should be released after a rejection")
	}
	if rec := post(h, "/api/v1/calendar", "retry-me", `{}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to run, got %d", rec.Code)
	}
	if calls != 2 || len(store.data) != 1 {
		t.Fatalf("calls=%d stored=%d", calls, len(store.data))
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, nil)
	var inflight *httptest.ResponseRecorder
	calls := 0
	var h http.Handler
	h = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// a retry lands while the first request is still running
			inflight = post(h, "/api/v1/reservations", "busy", `{"lines":[1]}`)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	if rec := post(h, "/api/v1/reservations", "busy", `{"lines":[1]}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("duplicate reached the handler, calls=%d", calls)
	}
	if inflight == nil || inflight.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %+v", inflight)
	}
	if !strings.Contains(inflight.Body.String(), "still in progress") {
		t.Fatalf("unexpected body %s", inflight.Body.String())
	}

	var stored idempotencyRecord
	for _, v := range store.data {
		if err := json.Unmarshal([]byte(v), &stored); err != nil {
			t.Fatalf("decode stored record: %v", err)
		}
	}
	if stored.Pending || stored.Status != http.StatusCreated {
		t.Fatalf("expected final record to replace the claim, got %+v", stored)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store := newFakeStore()
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	post(h, "/api/v1/calendar", "same", `{}`)
	post(h, "/api/v1/inventory/items", "same", `{}`)
	if len(store.data) != 2 {
		t.Fatalf("expected one record per route, got %d", len(store.data))
	}
}
