package httpdata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_StartStop(t *testing.T) {
	data := NewDataHandler(nil)
	require.NoError(t, data.AddDataSupplier("foo", func() any { return "bar" }))

	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, data, nil, nil)
	require.NoError(t, srv.Listen())
	base := "http://" + srv.Addr()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + DataPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"foo": "bar"}`, string(body))

	resp, err = http.Post(base+DataPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not return after Stop")
	}
}

func TestServer_CORS(t *testing.T) {
	srv := NewServer(ServerConfig{AllowedOrigins: []string{"http://dashboard.local"}}, NewDataHandler(nil), nil, nil)
	router := srv.Router()

	req, err := http.NewRequest(http.MethodOptions, DataPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere.local")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, NewDataHandler(nil), nil, nil)
	assert.NoError(t, srv.Stop(context.Background()))

	require.NoError(t, srv.Listen())
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_TLSAndHealth(t *testing.T) {
	// Borrow the test certificate of an httptest TLS server.
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	tlsConfig, client := ts.TLS, ts.Client()
	ts.Close()

	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", TLS: tlsConfig, Health: health}, NewDataHandler(nil), nil, nil)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Start() }()
	defer func() { _ = srv.Stop(context.Background()) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Get("https://" + srv.Addr() + "/health")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
