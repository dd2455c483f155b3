// Package api exposes a node's engine over HTTP so operators (and the client package) can inspect and drive it.
// The JSON endpoints are served by huma; /metrics is a plain promhttp handler over the node's own registry.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"github.com/rflandau/nodenet/pkg/nodenet/metrics"
	"github.com/rs/zerolog"
)

const (
	_API_NAME    string = "nodenet"
	_API_VERSION string = "0.1.0"
)

// ErrRunning is returned by Start if the server is already listening.
var ErrRunning = errors.New("server is already running")

// A Server is the control plane of a single node.
// Construct one with New.
type Server struct {
	log  *zerolog.Logger
	eng  *engine.Engine
	addr netip.AddrPort

	endpoint struct {
		api  huma.API
		mux  *http.ServeMux
		http *http.Server
	}
	reg *prometheus.Registry

	mu    sync.Mutex // guards the listener state
	ln    net.Listener
	errCh chan error
}

// Option function to set various options on the server.
type Option func(*Server)

// WithLogger overrides the default logger.
// To disable logging, pass a disabled zerolog logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithRegistry serves /metrics from reg instead of a fresh registry.
// The engine collector is registered onto it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.reg = reg
	}
}

// New builds (but does not start) the control plane for eng, to listen on addr.
func New(eng *engine.Engine, addr netip.AddrPort, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, errors.New("an engine is required")
	} else if !addr.IsValid() {
		return nil, fmt.Errorf("address %v is not a valid ip:port", addr)
	}
	s := &Server{eng: eng, addr: addr}
	s.endpoint.mux = http.NewServeMux()

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		l := zerolog.New(zerolog.ConsoleWriter{
			Out:         os.Stdout,
			FieldsOrder: []string{"node"},
			TimeFormat:  "15:04:05",
		}).With().
			Uint8("node", eng.LocalAddress()).
			Str("sublogger", "api").
			Timestamp().
			Caller().
			Logger().Level(zerolog.InfoLevel)
		s.log = &l
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
		s.reg.MustRegister(collectors.NewGoCollector())
	}
	if err := s.reg.Register(metrics.NewCollector(eng)); err != nil {
		return nil, fmt.Errorf("failed to register engine metrics: %w", err)
	}

	s.endpoint.api = humago.New(s.endpoint.mux, huma.DefaultConfig(_API_NAME, _API_VERSION))
	s.buildEndpoints()

	return s, nil
}

// Handler returns the root handler of the control plane.
func (s *Server) Handler() http.Handler {
	return s.endpoint.mux
}

// AddrPort returns the address the server listens on.
// After Start, this reflects the bound port.
func (s *Server) AddrPort() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background.
// The server is accepting connections by the time Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrRunning
	}
	ln, err := net.Listen("tcp", s.addr.String())
	if err != nil {
		return err
	}
	if ap, err := netip.ParseAddrPort(ln.Addr().String()); err == nil {
		s.addr = ap
	}
	s.ln = ln
	s.endpoint.http = &http.Server{Handler: s.endpoint.mux}
	s.errCh = make(chan error, 1)
	go func(srv *http.Server, ch chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		ch <- err
	}(s.endpoint.http, s.errCh)

	s.log.Info().Str("address", s.addr.String()).Msg("listening...")
	return nil
}

// Stop gracefully shuts the server down.
// Ineffectual if the server is not running.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.endpoint.http.Shutdown(ctx)
	if serr := <-s.errCh; err == nil {
		err = serr
	}
	s.ln = nil
	s.log.Info().Str("address", s.addr.String()).AnErr("close error", err).Msg("killed http server")
	return err
}

// buildEndpoints registers every route onto the mux.
func (s *Server) buildEndpoints() {
	huma.Register(s.endpoint.api, huma.Operation{
		OperationID:   "status",
		Method:        http.MethodGet,
		Path:          EP_STATUS,
		Summary:       "Describe the node",
		DefaultStatus: EXPECTED_STATUS_STATUS,
	}, s.handleStatus)

	huma.Register(s.endpoint.api, huma.Operation{
		OperationID:   "slots",
		Method:        http.MethodGet,
		Path:          EP_SLOTS,
		Summary:       "List occupied packet slots",
		DefaultStatus: EXPECTED_STATUS_SLOTS,
	}, s.handleSlots)

	huma.Register(s.endpoint.api, huma.Operation{
		OperationID:   "send",
		Method:        http.MethodPost,
		Path:          EP_SEND,
		Summary:       "Queue a request",
		Description:   "Places a request in the pool. It is transmitted on the node's next tick and retransmitted until acknowledged or out of retries.",
		DefaultStatus: EXPECTED_STATUS_SEND,
	}, s.handleSend)

	huma.Register(s.endpoint.api, huma.Operation{
		OperationID:   "stats",
		Method:        http.MethodGet,
		Path:          EP_STATS,
		Summary:       "Engine counters",
		DefaultStatus: EXPECTED_STATUS_STATS,
	}, s.handleStats)

	s.endpoint.mux.Handle(EP_METRICS, promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
}
