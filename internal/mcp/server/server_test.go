package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDBAgent_MCP_Server_HealthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("healthz", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, failingDB{})
		rr := httptest.NewRecorder()
		s.healthzHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ok\n", rr.Body.String())
	})

	t.Run("readyz with reachable database", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		rr := httptest.NewRecorder()
		s.readyzHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("readyz with unreachable database", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, failingDB{})
		rr := httptest.NewRecorder()
		s.readyzHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "database not ready\n", rr.Body.String())
	})
}

func TestDBAgent_MCP_Server_AuthMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, failingDB{})
	s.cfg.AllowedTokens = []string{"secret"}
	handler := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic secret", status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer  ", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer secret", status: http.StatusNoContent},
		{name: "case insensitive scheme", header: "bearer secret", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestDBAgent_MCP_Server_HTTPTransport(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Logger: testLogger(), DB: failingDB{}, Transport: TransportHTTP, AllowedTokens: []string{"secret"}})
	require.NoError(t, err)
	require.NotNil(t, s.http)

	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Post(srv.URL+"/", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}
