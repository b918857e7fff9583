// internal/discovery/tcp.go
package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
)

// MaxScanHosts caps the size of a network range
const MaxScanHosts = 4096

// TCPConfig configures network scanning
type TCPConfig struct {
	// Network is a CIDR range such as 192.168.10.0/24
	Network     string
	Port        int
	ConnTimeout time.Duration
	Workers     int
}

// TCPScanner probes every host of a network range for the device port
type TCPScanner struct {
	logger *zap.Logger
	config TCPConfig
}

// NewTCPScanner creates a TCP scanner
func NewTCPScanner(cfg TCPConfig, logger *zap.Logger) *TCPScanner {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 500 * time.Millisecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 32
	}

	return &TCPScanner{
		logger: logger.With(zap.String("scanner", "tcp"), zap.String("network", cfg.Network)),
		config: cfg,
	}
}

// GetScannerType returns scanner type
func (s *TCPScanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether a network range is configured
func (s *TCPScanner) IsAvailable() bool {
	return s.config.Network != ""
}

// Scan returns the hosts that answered PING with PONG, in address order
func (s *TCPScanner) Scan(ctx context.Context) ([]*Candidate, error) {
	hosts, err := expandNetwork(s.config.Network)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting TCP network scan", zap.Int("hosts", len(hosts)), zap.Int("port", s.config.Port))

	results := make([]*Candidate, len(hosts))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.probeHost(ctx, hosts[i])
			}
		}()
	}

feed:
	for i := range hosts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var found []*Candidate
	for _, c := range results {
		if c != nil && c.Responsive() {
			found = append(found, c)
		}
	}

	s.logger.Info("TCP scan completed", zap.Int("devices_found", len(found)))
	return found, ctx.Err()
}

func (s *TCPScanner) probeHost(ctx context.Context, host netip.Addr) *Candidate {
	transport := protocol.NewTCPConnection(&protocol.TCPConfig{
		Host:    host.String(),
		Port:    s.config.Port,
		Timeout: s.config.ConnTimeout,
	}, s.logger)

	candidate := &Candidate{ConnectionType: model.ConnectionTypeTCP, Address: transport.RemoteAddr()}
	candidate.Reply, candidate.Err = probe(ctx, transport, s.logger)
	return candidate
}

// expandNetwork lists the host addresses of a CIDR range. Network and
// broadcast addresses are skipped for IPv4 ranges wider than /31.
func expandNetwork(network string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", network, err)
	}
	prefix = prefix.Masked()

	var hosts []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		if len(hosts) > MaxScanHosts {
			return nil, fmt.Errorf("network %s has more than %d hosts", network, MaxScanHosts)
		}
		hosts = append(hosts, addr)
		if !addr.Next().IsValid() {
			break
		}
	}

	if prefix.Addr().Is4() && prefix.Bits() < 31 && len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}
