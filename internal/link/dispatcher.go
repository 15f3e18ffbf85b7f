package link

import (
	"context"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

const tracerName = "gflink/link"

// Handler receives every frame decoded from the link.
type Handler interface {
	HandlePackage(pkg protocol.Package)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(pkg protocol.Package)

func (f HandlerFunc) HandlePackage(pkg protocol.Package) { f(pkg) }

// FrameHandler is implemented by handlers that also want the frame exactly as
// it arrived. raw is only valid for the duration of the call.
type FrameHandler interface {
	Handler
	HandleFrame(pkg protocol.Package, raw []byte)
}

// Dispatcher fans frames out to an explicit list of subscribers. Handlers are
// called in registration order on the dispatching goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	metrics  *common.Metrics
	tp       trace.TracerProvider
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetMetrics counts dispatched and rejected frames in m.
func (d *Dispatcher) SetMetrics(m *common.Metrics) {
	d.mu.Lock()
	d.metrics = m
	d.mu.Unlock()
}

// SetTracerProvider routes datagram spans to tp instead of the global otel
// provider.
func (d *Dispatcher) SetTracerProvider(tp trace.TracerProvider) {
	d.mu.Lock()
	d.tp = tp
	d.mu.Unlock()
}

// Add registers h. Nil handlers are ignored.
func (d *Dispatcher) Add(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Remove unregisters the first handler equal to h. Handlers are compared
// with ==, so HandlerFunc values cannot be removed.
func (d *Dispatcher) Remove(h Handler) bool {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.handlers {
		if cur == h {
			d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch hands pkg to every registered handler.
func (d *Dispatcher) Dispatch(pkg protocol.Package) {
	d.dispatch(pkg, nil)
}

// DispatchFrame is Dispatch for a frame decoded from raw. FrameHandlers get
// raw alongside the decoded package.
func (d *Dispatcher) DispatchFrame(pkg protocol.Package, raw []byte) {
	d.dispatch(pkg, raw)
}

func (d *Dispatcher) dispatch(pkg protocol.Package, raw []byte) {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()
	for _, h := range handlers {
		if fh, ok := h.(FrameHandler); ok && raw != nil {
			fh.HandleFrame(pkg, raw)
			continue
		}
		h.HandlePackage(pkg)
	}
}

// DispatchBytes decodes every frame of a datagram and dispatches them in
// order. Decoding stops at the first bad frame; its status is returned with
// the number of frames dispatched before it.
func (d *Dispatcher) DispatchBytes(buf []byte) (int, protocol.UnpackStatus) {
	d.mu.RLock()
	m := d.metrics
	d.mu.RUnlock()

	n := 0
	for off := 0; off < len(buf); {
		pkg, next, st := protocol.Unpack(buf, off)
		if st != protocol.StatusSuccess {
			if m != nil {
				m.IncReject(st.String())
			}
			return n, st
		}
		if m != nil {
			m.AddFrame(int64(next-off), len(pkg.Pairs))
		}
		d.DispatchFrame(pkg, buf[off:next:next])
		n++
		off = next
	}
	return n, protocol.StatusSuccess
}

// DispatchDatagram is DispatchBytes inside a span carrying the peer address.
func (d *Dispatcher) DispatchDatagram(ctx context.Context, from string, buf []byte) (int, protocol.UnpackStatus) {
	d.mu.RLock()
	tp := d.tp
	d.mu.RUnlock()
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	_, span := tp.Tracer(tracerName).Start(ctx, "link.datagram",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("net.peer", from),
			attribute.Int("datagram.bytes", len(buf)),
		),
	)
	defer span.End()

	n, st := d.DispatchBytes(buf)
	span.SetAttributes(attribute.Int("datagram.frames", n))
	if st != protocol.StatusSuccess {
		span.SetStatus(codes.Error, st.String())
	}
	return n, st
}
