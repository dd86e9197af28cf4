package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/eventrentals-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	defaultIdempotencyTTL = 24 * time.Hour
	// claimTTL bounds how long a crashed request can block its key.
	claimTTL = time.Minute
)

// IdempotentReplayHeader marks responses served from a stored idempotency record.
const IdempotentReplayHeader = "Idempotent-Replayed"

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
}

// Engine writes that must not run twice when a client retries.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchExact("/api/v1/reservations")},
	{method: http.MethodPost, matcher: matchPrefixSuffix("/api/v1/reservations/", "/confirm")},
	{method: http.MethodPost, matcher: matchExact("/api/v1/calendar")},
	{method: http.MethodPost, matcher: matchExact("/api/v1/inventory/items")},
	{method: http.MethodPost, matcher: matchPrefixSuffix("/api/v1/inventory/items/", "/adjust")},
}

// idempotencyRecord is either an in-flight claim or a finished 2xx response.
type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency guards the routes in idempotencyRules. The first request for a
// key claims it, runs, and pins its response when it succeeded. Repeats get
// the pinned response back; a repeat that arrives while the first is still
// running, or that carries a different body, is rejected with a conflict.
// A non-positive ttl falls back to 24h.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !requiresIdempotency(r.Method, routePattern(r)) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			claimed, err := claim(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				existing, err := loadRecord(ctx, store, key)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				switch {
				case existing == nil || (existing.Pending && existing.RequestHash == hash):
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
				case existing.RequestHash != hash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				default:
					writeStoredResponse(w, existing)
				}
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if status < 200 || status >= 300 {
				// A rejected request may be retried with the same key.
				if err := store.Del(ctx, key); err != nil {
					logError(ctx, logg, "release idempotency claim", err)
				}
				return
			}

			final := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: hash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				final.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(final)
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func claim(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	payload, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal idempotency claim")
	}
	ok, err := store.SetNX(ctx, key, string(payload), claimTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

// loadRecord returns nil when the key expired between the claim and the read.
func loadRecord(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*idempotencyRecord, error) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && stored == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &record, nil
}

func buildScope(r *http.Request) string {
	parts := []string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// Group middleware runs before chi resolves the leaf route, so a
	// wildcard pattern falls back to the request path.
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return trimTrailingSlash(pattern)
		}
	}
	return trimTrailingSlash(r.URL.Path)
}

func trimTrailingSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

func requiresIdempotency(method, pattern string) bool {
	if pattern == "" {
		return false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.matcher(pattern) {
			return true
		}
	}
	return false
}

func matchExact(path string) routeMatcher {
	return func(pattern string) bool {
		return pattern == path
	}
}

func matchPrefixSuffix(prefix, suffix string) routeMatcher {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
