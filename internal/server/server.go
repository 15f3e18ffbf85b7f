package server

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"example.com/gflink/internal/protocol"
)

const (
	tracerName = "gflink/server"

	// maxBody bounds uploaded frame buffers and mission documents.
	maxBody = 16 << 20
)

// Options configures server creation.
type Options struct {
	// Registry receives the server's collectors. A private registry is
	// created when nil.
	Registry *prometheus.Registry
	// Now stamps telemetry arrivals. Defaults to time.Now.
	Now func() time.Time
	// TracerProvider supplies the request spans. Defaults to the global
	// otel provider.
	TracerProvider trace.TracerProvider
}

// BoardTelemetry is the last telemetry frame received from one board.
type BoardTelemetry struct {
	Board     uint32             `json:"board"`
	Received  time.Time          `json:"received"`
	Telemetry protocol.Telemetry `json:"telemetry"`
}

// Server serves the HTTP surface of the link. It is also a link.Handler:
// every received frame updates the telemetry table and is pushed to stream
// subscribers.
type Server struct {
	mu     sync.RWMutex
	latest map[uint32]BoardTelemetry

	registry *prometheus.Registry
	metrics  *serverMetrics
	tracer   trace.Tracer
	hub      *hub
	now      func() time.Time
	started  time.Time
}

func NewServer(opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	m := newServerMetrics(reg)
	return &Server{
		latest:   make(map[uint32]BoardTelemetry),
		registry: reg,
		metrics:  m,
		tracer:   tp.Tracer(tracerName),
		hub:      newHub(m),
		now:      now,
		started:  now(),
	}
}

// HandlePackage records telemetry and fans the frame out to stream clients.
func (s *Server) HandlePackage(pkg protocol.Package) {
	s.metrics.linkFrames.WithLabelValues(pkg.Header.Source.String(), pkg.Header.Type.String()).Inc()
	if pkg.Header.Source == protocol.SourceMGP && pkg.Header.Type == protocol.TypeTelemetry {
		tm := protocol.DecodeTelemetry(pkg.Pairs)
		s.mu.Lock()
		s.latest[pkg.Header.BoardNumber] = BoardTelemetry{
			Board:     pkg.Header.BoardNumber,
			Received:  s.now(),
			Telemetry: tm,
		}
		s.mu.Unlock()
		s.metrics.boards.Set(float64(s.boardCount()))
	}
	s.hub.broadcast(newStreamFrame(pkg))
}

func (s *Server) boardCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

// Telemetry returns the latest telemetry of every board, ordered by board.
func (s *Server) Telemetry() []BoardTelemetry {
	s.mu.RLock()
	out := make([]BoardTelemetry, 0, len(s.latest))
	for _, bt := range s.latest {
		out = append(out, bt)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Board < out[j].Board })
	return out
}

// BoardTelemetry returns the latest telemetry of one board.
func (s *Server) BoardTelemetry(board uint32) (BoardTelemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bt, ok := s.latest[board]
	return bt, ok
}

// Registry exposes the collectors, for callers adding their own.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Close disconnects stream clients.
func (s *Server) Close() error {
	s.hub.closeAll()
	return nil
}
