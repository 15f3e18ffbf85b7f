package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

const (
	DefaultHost    = "127.0.0.1"
	DefaultPortIn  = 1234
	DefaultPortOut = 4321

	maxDatagram = 64 * 1024
	pollTimeout = 100 * time.Millisecond
)

var ErrNotStarted = errors.New("transmitter not started")

// Config addresses the link. Frames are received on PortIn and sent to
// Host:PortOut. A multicast Host is also joined for receiving.
type Config struct {
	Host    string `yaml:"host" toml:"host"`
	PortIn  uint16 `yaml:"portIn" toml:"port_in"`
	PortOut uint16 `yaml:"portOut" toml:"port_out"`
}

// Normalize fills unset fields with the link defaults.
func (c Config) Normalize() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.PortIn == 0 {
		c.PortIn = DefaultPortIn
	}
	if c.PortOut == 0 {
		c.PortOut = DefaultPortOut
	}
	return c
}

// Transmitter is the UDP end of the link.
type Transmitter struct {
	mu   sync.Mutex
	cfg  Config
	conn *net.UDPConn
	dst  *net.UDPAddr
	disp *Dispatcher
}

// NewTransmitter returns an unbound transmitter feeding received datagrams to
// d. Config is used as given; call Config.Normalize for defaults.
func NewTransmitter(cfg Config, d *Dispatcher) *Transmitter {
	return &Transmitter{cfg: cfg, disp: d}
}

// Start binds PortIn on all IPv4 interfaces, joining Host when it is a
// multicast group.
func (t *Transmitter) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked()
}

func (t *Transmitter) startLocked() error {
	if t.conn != nil {
		return nil
	}
	host, err := netip.ParseAddr(t.cfg.Host)
	if err != nil || !host.Is4() {
		return fmt.Errorf("link host %q: not an IPv4 address", t.cfg.Host)
	}
	var conn *net.UDPConn
	if host.IsMulticast() {
		group := &net.UDPAddr{IP: net.IP(host.AsSlice()), Port: int(t.cfg.PortIn)}
		conn, err = net.ListenMulticastUDP("udp4", nil, group)
	} else {
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: int(t.cfg.PortIn)})
	}
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", t.cfg.PortIn, err)
	}
	t.conn = conn
	t.dst = net.UDPAddrFromAddrPort(netip.AddrPortFrom(host, t.cfg.PortOut))
	common.Logf("link bound on %s, sending to %s", conn.LocalAddr(), t.dst)
	return nil
}

// Stop closes the socket. A running Run returns.
func (t *Transmitter) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Transmitter) stopLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *Transmitter) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Config returns the current link addressing.
func (t *Transmitter) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// LocalAddr is the bound receive address, or nil before Start.
func (t *Transmitter) LocalAddr() *net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Reconfigure applies a NetworkParams command: the socket is rebound with the
// new ports and host. Zero fields keep their current value.
func (t *Transmitter) Reconfigure(np protocol.NetworkParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if np.PortIn != 0 {
		t.cfg.PortIn = np.PortIn
	}
	if np.PortOut != 0 {
		t.cfg.PortOut = np.PortOut
	}
	if np.Host != 0 {
		t.cfg.Host = IPToString(np.Host)
	}
	if t.conn == nil {
		return nil
	}
	if err := t.stopLocked(); err != nil {
		common.Logf("link close before rebind: %v", err)
	}
	return t.startLocked()
}

// SetDestination changes where Send delivers without rebinding.
func (t *Transmitter) SetDestination(host string, port uint16) error {
	addr, err := netip.ParseAddrPort(net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Host, t.cfg.PortOut = host, port
	t.dst = net.UDPAddrFromAddrPort(addr)
	return nil
}

// Send writes one datagram to Host:PortOut.
func (t *Transmitter) Send(b []byte) error {
	t.mu.Lock()
	conn, dst := t.conn, t.dst
	t.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}
	_, err := conn.WriteToUDP(b, dst)
	return err
}

// SendPackage packs p and sends it as one datagram.
func (t *Transmitter) SendPackage(p protocol.Package) error {
	b, err := protocol.Pack(p)
	if err != nil {
		return err
	}
	return t.Send(b)
}

// Run receives datagrams and dispatches their frames until ctx is done or the
// transmitter is stopped. A Reconfigure while running is picked up on the
// next read.
func (t *Transmitter) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(pollTimeout))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				continue
			}
			return err
		}
		if t.disp == nil {
			continue
		}
		if frames, st := t.disp.DispatchDatagram(ctx, from.String(), buf[:n]); st != protocol.StatusSuccess {
			common.Logf("datagram from %s: %s after %d frames", from, st, frames)
		}
	}
}
