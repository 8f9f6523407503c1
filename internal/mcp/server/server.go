package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/dbagent/internal/mcp/metrics"
)

const serverName = "mcp-db"

type Server struct {
	log  *slog.Logger
	cfg  Config
	mcp  *mcp.Server
	http *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Title:   "MCP Database Server",
		Version: cfg.Version,
	}, nil)

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcpServer,
	}

	if err := RegisterListTablesTool(s.log, mcpServer, cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to create list tables tool: %w", err)
	}
	if err := RegisterDescribeTableTool(s.log, mcpServer, cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to create describe table tool: %w", err)
	}
	if err := RegisterRunSQLTool(s.log, mcpServer, cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to create run sql tool: %w", err)
	}
	RegisterTableResources(s.log, mcpServer, cfg.DB, cfg.SampleRows)
	RegisterQueryErrorPrompt(s.log, mcpServer)

	if cfg.Transport == TransportHTTP {
		s.http = s.newHTTPServer()
	}

	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves the configured transport until ctx is cancelled or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Transport == TransportStdio {
		s.log.Info("server: mcp stdio serving")
		if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to serve stdio: %w", err)
		}
		s.log.Info("server: stdio session closed")
		return nil
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: mcp streamable http listening",
		"listenAddr", s.cfg.ListenAddr,
	)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping",
			"reason", ctx.Err(),
			"listenAddr", s.cfg.ListenAddr,
		)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: HTTP server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) newHTTPServer() *http.Server {
	mux := http.NewServeMux()
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})

	if len(s.cfg.AllowedTokens) > 0 {
		mux.Handle("/", s.metricsMiddleware(s.authMiddleware(handler)))
	} else {
		mux.Handle("/", s.metricsMiddleware(handler))
	}
	mux.Handle("/healthz", s.metricsMiddleware(http.HandlerFunc(s.healthzHandler)))
	mux.Handle("/readyz", s.metricsMiddleware(http.HandlerFunc(s.readyzHandler)))

	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeText(w, http.StatusOK, "ok\n")
}

// readyzHandler reports ready once the database answers a ping.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.cfg.DB.Ping(ctx); err != nil {
		s.log.Debug("readyz: database not ready", "error", err)
		s.writeText(w, http.StatusServiceUnavailable, "database not ready\n")
		return
	}
	s.writeText(w, http.StatusOK, "ok\n")
}

// authMiddleware wraps an HTTP handler with Bearer token authentication
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.unauthorized(w, "missing_header", "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			s.unauthorized(w, "invalid_format", "invalid authorization header format")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			s.unauthorized(w, "empty_token", "empty token")
			return
		}

		if !slices.Contains(s.cfg.AllowedTokens, token) {
			s.unauthorized(w, "invalid_token", "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, reason, message string) {
	metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	w.Header().Set("WWW-Authenticate", `Bearer`)
	s.writeText(w, http.StatusUnauthorized, "unauthorized: "+message+"\n")
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

// metricsMiddleware wraps an HTTP handler with metrics collection
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.Observe(time.Since(startTime).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed responses through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
