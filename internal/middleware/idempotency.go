package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader   = "Idempotency-Key"
	maxIdempotencyKey   = 255
	defaultLeaseTTL     = 30 * time.Second
	defaultResponseTTL  = 24 * time.Hour
	replayedHeader      = "Idempotent-Replayed"
	storeCleanupTimeout = 5 * time.Second
)

// StoredResponse is the response replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyStore records responses per key. Acquire returns acquired=true when
// the caller holds the lease and must run the request; otherwise stored is the
// previous response, or nil while another request with the key is in flight.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (acquired bool, stored *StoredResponse, err error)
	Save(ctx context.Context, key string, resp StoredResponse) error
	Release(ctx context.Context, key string) error
}

// redisClient is the subset of go-redis used by RedisStore.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps responses in Redis and guards in-flight requests with a SETNX lease.
type RedisStore struct {
	client      redisClient
	leaseTTL    time.Duration
	responseTTL time.Duration
}

func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, leaseTTL: defaultLeaseTTL, responseTTL: defaultResponseTTL}
}

func responseKey(key string) string { return "idem:resp:" + key }
func leaseKey(key string) string    { return "idem:lease:" + key }

func (s *RedisStore) Acquire(ctx context.Context, key string) (bool, *StoredResponse, error) {
	if resp, err := s.stored(ctx, key); err != nil || resp != nil {
		return false, resp, err
	}
	ok, err := s.client.SetNX(ctx, leaseKey(key), "1", s.leaseTTL).Result()
	if err != nil {
		return false, nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return false, nil, nil
	}
	// A request holding the lease may have saved and released it between
	// the GET and the SETNX.
	resp, err := s.stored(ctx, key)
	if err != nil || resp != nil {
		if relErr := s.Release(ctx, key); relErr != nil && err == nil {
			err = relErr
		}
		return false, resp, err
	}
	return true, nil, nil
}

// stored returns the saved response for key, or nil when there is none.
func (s *RedisStore) stored(ctx context.Context, key string) (*StoredResponse, error) {
	data, err := s.client.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stored response: %w", err)
	}
	var resp StoredResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, resp StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := s.client.Set(ctx, responseKey(key), data, s.responseTTL).Err(); err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return s.Release(ctx, key)
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, leaseKey(key)).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

type memoryEntry struct {
	resp      *StoredResponse
	expiresAt time.Time
}

// MemoryStore is a single-process IdempotencyStore used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), ttl: defaultResponseTTL, now: time.Now}
}

func (s *MemoryStore) Acquire(_ context.Context, key string) (bool, *StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return false, e.resp, nil
	}
	s.entries[key] = &memoryEntry{expiresAt: now.Add(defaultLeaseTTL)}
	return true, nil, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, resp StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memoryEntry{resp: &resp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.resp == nil {
		delete(s.entries, key)
	}
	return nil
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency requires an Idempotency-Key header and replays the stored
// response for a repeated key. Keys are scoped per user, method and path.
// 5xx responses release the key so the client can retry.
func Idempotency(store IdempotencyStore, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(IdempotencyHeader)
			if raw == "" || len(raw) > maxIdempotencyKey {
				writeError(w, http.StatusBadRequest, "Idempotency-Key header required")
				return
			}
			scope := "anon"
			if sess := SessionFromCtx(r.Context()); sess != nil {
				scope = sess.UserID.String()
			}
			key := scope + ":" + r.Method + ":" + r.URL.Path + ":" + raw

			acquired, stored, err := store.Acquire(r.Context(), key)
			if err != nil {
				log.Error("idempotency store unavailable", "error", err)
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", stored.ContentType)
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}
			if !acquired {
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			}

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// The response is already committed; don't let client cancellation lose it.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), storeCleanupTimeout)
			defer cancel()
			if rec.status == 0 || rec.status >= 500 {
				if err := store.Release(ctx, key); err != nil {
					log.Warn("idempotency release failed", "error", err)
				}
				return
			}
			resp := StoredResponse{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()}
			if err := store.Save(ctx, key, resp); err != nil {
				log.Warn("idempotency save failed", "error", err)
			}
		})
	}
}
