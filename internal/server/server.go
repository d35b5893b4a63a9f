package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/metrics"
)

// DefaultShutdownTimeout bounds Start's shutdown once its context is done
const DefaultShutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Addr     string // host:port to listen on
	CertPath string // Serve HTTPS when both CertPath and KeyPath are set
	KeyPath  string
}

// Server exposes a discovery manager over HTTP
type Server struct {
	config    *Config
	manager   *discovery.Manager
	metrics   *metrics.Metrics
	tlsConfig *tls.Config
	http      *http.Server

	wg          sync.WaitGroup
	mu          sync.Mutex
	listener    net.Listener
	activeConns map[string]*websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates a new Server instance. m may be nil.
func New(config *Config, manager *discovery.Manager, m *metrics.Metrics) (*Server, error) {
	if manager == nil {
		return nil, errors.New("server requires a discovery manager")
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	s := &Server{
		config:      config,
		manager:     manager,
		metrics:     m,
		tlsConfig:   tlsConfig,
		activeConns: make(map[string]*websocket.Conn),
		done:        make(chan struct{}),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}
	return s, nil
}

// Listen binds the configured address. Start calls it when needed.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves until ctx is done or serving fails, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	logging.Info("Serving castscan API",
		zap.Stringer("addr", addr),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting requests, closes event streams and waits for
// their goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	err := s.http.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	// Hijacked connections are not closed by http.Server.Shutdown.
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing event stream", zap.String("remote_addr", addr))
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All event streams closed")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		err = multierr.Append(err, ctx.Err())
	}
	return err
}

// GetActiveConnections returns the number of open event streams
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) trackConn(addr string, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.activeConns[addr] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) releaseConn(addr string) {
	s.mu.Lock()
	delete(s.activeConns, addr)
	s.mu.Unlock()
	s.wg.Done()
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
