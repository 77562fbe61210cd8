package objectcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/source-matcher/internal/resilience"
)

func TestFetch(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantErr     bool
		wantConnect bool
	}{
		{name: "success", status: http.StatusOK},
		{name: "missing", status: http.StatusNotFound, wantErr: true},
		{name: "server_error", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "FILE%20A_D_S1", r.URL.Query().Get("key"))
				w.WriteHeader(tt.status)
				w.Write([]byte("blob"))
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL))
			got, err := c.Fetch(context.Background(), "FILE A_D_S1")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.status, resilience.StatusCode(err))
				assert.False(t, resilience.IsConnect(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "blob", string(got))
		})
	}
}

func TestFetchConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient(WithBaseURL(addr), WithTimeout(time.Second)).Fetch(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, resilience.IsConnect(err))
}

func TestQuoteKey(t *testing.T) {
	assert.Equal(t, "a%2Fb%20c%2Bd", quoteKey("a/b c+d"))
	assert.Equal(t, "plain_key.pkl", quoteKey("plain_key.pkl"))
}

func TestStore(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		anyErr  bool
	}{
		{name: "created", status: http.StatusCreated, body: `{"status":"success"}`},
		{name: "not_stored", status: http.StatusCreated, body: `{"status":"failed"}`, wantErr: ErrNotStored},
		{name: "wrong_status", status: http.StatusOK, body: `{"status":"success"}`, anyErr: true},
		{name: "malformed", status: http.StatusCreated, body: `nope`, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				f, hdr, err := r.FormFile("file")
				require.NoError(t, err)
				assert.Equal(t, "OUT_D_S1", hdr.Filename)
				b, _ := io.ReadAll(f)
				assert.Equal(t, "zipbytes", string(b))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(WithStoreURL(srv.URL))
			key, err := c.Store(context.Background(), "OUT_D_S1", []byte("zipbytes"))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "OUT_D_S1", key)
			}
		})
	}
}

type fakeRedis struct {
	data   map[string][]byte
	getErr error
	setErr error
	ttl    time.Duration
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.([]byte)
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisBackend(t *testing.T) {
	fake := &fakeRedis{data: map[string][]byte{}}
	c := newRedis(fake, WithTTL(time.Hour))

	key, err := c.Store(context.Background(), "OUT_D_S1", []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, "OUT_D_S1", key)
	assert.Equal(t, time.Hour, fake.ttl)

	got, err := c.Fetch(context.Background(), "OUT_D_S1")
	require.NoError(t, err)
	assert.Equal(t, "blob", string(got))

	_, err = c.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resilience.StatusCode(err))
	assert.False(t, resilience.IsConnect(err))
}

func TestRedisBackendConnectErrors(t *testing.T) {
	down := errors.New("dial tcp: connection refused")
	fake := &fakeRedis{data: map[string][]byte{}, getErr: down, setErr: down}
	cb := resilience.NewBreaker(ServiceName, resilience.BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	c := newRedis(fake, WithRedisBreaker(cb))

	_, err := c.Fetch(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, resilience.IsConnect(err))
	assert.Equal(t, resilience.StateOpen, cb.State())

	_, err = c.Store(context.Background(), "k", []byte("x"))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
