package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/metrics"
)

// Grid defaults.
const (
	DefaultGridPort      = 9000
	DefaultBroadcastAddr = "255.255.255.255"
	DefaultListenAddr    = "0.0.0.0"
	maxDatagramSize      = 1024
)

// GridConfig configures the peer alert channel.
type GridConfig struct {
	Port          int
	BroadcastAddr string
	ListenAddr    string
	// SenderIP is put in outgoing alerts. Empty means the first
	// non-loopback IPv4 address of the host.
	SenderIP   string
	ThreatType string
}

// Grid sends and receives distress alerts as UDP broadcast datagrams.
type Grid struct {
	cfg     GridConfig
	sender  net.PacketConn
	dest    *net.UDPAddr
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.PacketConn
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	stats struct {
		sent      int
		received  int
		malformed int
	}
}

// NewGrid opens the broadcast sender socket. The caller must treat an error as fatal.
func NewGrid(cfg GridConfig, m *metrics.Metrics, logger zerolog.Logger) (*Grid, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid grid port %d", cfg.Port)
	}
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = DefaultBroadcastAddr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ThreatType == "" {
		cfg.ThreatType = domain.ThreatRansomware
	}
	if cfg.SenderIP == "" {
		cfg.SenderIP = localIPv4()
	}

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.BroadcastAddr, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("invalid broadcast address: %w", err)
	}

	lc := net.ListenConfig{Control: setBroadcast}
	sender, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open broadcast socket: %w", err)
	}

	return &Grid{
		cfg:     cfg,
		sender:  sender,
		dest:    dest,
		metrics: m,
		logger:  logger.With().Str("component", "grid").Logger(),
	}, nil
}

// NewAlert builds an alert from this host.
func (g *Grid) NewAlert() domain.Alert {
	return domain.NewAlert(g.cfg.SenderIP, g.cfg.ThreatType)
}

// Broadcast sends alert once. There is no acknowledgement and no retry.
func (g *Grid) Broadcast(alert domain.Alert) error {
	payload, err := alert.Encode()
	if err != nil {
		return err
	}

	if _, err := g.sender.WriteTo(payload, g.dest); err != nil {
		return fmt.Errorf("failed to broadcast alert to %s: %w", g.dest, err)
	}

	g.mu.Lock()
	g.stats.sent++
	g.mu.Unlock()
	g.metrics.AlertsSent.Inc()

	g.logger.Warn().Str("dest", g.dest.String()).Str("threat_type", alert.ThreatType).Msg("distress alert broadcast")
	return nil
}

// Listen binds the alert port and starts the receive loop. A bind failure is
// returned; afterwards every parsed alert is handed to sink exactly once until
// Stop is called or ctx is done. Malformed datagrams are dropped.
func (g *Grid) Listen(ctx context.Context, sink domain.AlertSink) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("grid listener already running")
	}

	addr := net.JoinHostPort(g.cfg.ListenAddr, strconv.Itoa(g.cfg.Port))
	lc := net.ListenConfig{Control: setReuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("failed to bind grid listener on %s: %w", addr, err)
	}
	g.listener = conn
	g.running = true
	g.stopCh = make(chan struct{})
	g.mu.Unlock()

	g.logger.Info().Str("addr", conn.LocalAddr().String()).Msg("grid listener started")

	stop := g.stopCh
	g.wg.Add(2)
	go g.receiveLoop(conn, sink)
	go func() {
		defer g.wg.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()
	return nil
}

// LocalAddr returns the bound listener address, or nil before Listen.
func (g *Grid) LocalAddr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.LocalAddr()
}

func (g *Grid) receiveLoop(conn net.PacketConn, sink domain.AlertSink) {
	defer g.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				g.logger.Info().Msg("grid listener stopped")
				return
			}
			g.logger.Error().Err(err).Msg("grid receive failed")
			continue
		}

		alert, err := domain.ParseAlert(buf[:n])
		if err != nil {
			g.mu.Lock()
			g.stats.malformed++
			g.mu.Unlock()
			g.metrics.AlertsMalformed.Inc()
			g.logger.Debug().Err(err).Str("from", from.String()).Msg("dropping malformed datagram")
			continue
		}

		g.mu.Lock()
		g.stats.received++
		g.mu.Unlock()
		g.metrics.AlertsReceived.Inc()

		g.logger.Warn().
			Str("from", from.String()).
			Str("sender_ip", alert.SenderIP).
			Str("threat_type", alert.ThreatType).
			Uint64("timestamp", alert.Timestamp).
			Msg("distress alert received")

		sink.HandleAlert(alert)
	}
}

// Stop ends the receive loop, waits for it and closes the sender socket.
func (g *Grid) Stop() {
	g.mu.Lock()
	if g.running {
		g.running = false
		close(g.stopCh)
	}
	g.mu.Unlock()

	g.wg.Wait()
	g.sender.Close()
}

// GetStats returns grid counters.
func (g *Grid) GetStats() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	return map[string]interface{}{
		"listening":       g.running,
		"alerts_sent":     g.stats.sent,
		"alerts_received": g.stats.received,
		"malformed":       g.stats.malformed,
	}
}

func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
