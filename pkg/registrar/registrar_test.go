package registrar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	mu           sync.Mutex
	registered   map[string]any
	deregistered string
}

func (f *fakeAgent) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/v1/agent/service/register":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.registered = body
	case strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
		f.deregistered = strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRegisterDeregister(t *testing.T) {
	agent := &fakeAgent{}
	srv := httptest.NewServer(http.HandlerFunc(agent.handler))
	defer srv.Close()

	r, err := New(Options{
		ConsulAddr:  strings.TrimPrefix(srv.URL, "http://"),
		ServiceName: "tba-source-matcher",
		AdvertiseIP: "10.0.0.5",
		Port:        8000,
	})
	require.NoError(t, err)

	require.NoError(t, r.Register())
	assert.Equal(t, "tba-source-matcher", agent.registered["Name"])
	assert.Equal(t, "10.0.0.5", agent.registered["Address"])
	check := agent.registered["Check"].(map[string]any)
	assert.Equal(t, "http://10.0.0.5:8000/health", check["HTTP"])

	require.NoError(t, r.Deregister())
	assert.Equal(t, r.ID(), agent.deregistered)
}

func TestRegisterAgentDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := New(Options{ConsulAddr: strings.TrimPrefix(srv.URL, "http://"), ServiceName: "svc", Port: 1})
	require.NoError(t, err)
	assert.Error(t, r.Register())
}

func TestLocalIP(t *testing.T) {
	assert.NotEmpty(t, localIP())
}
