package infrastructure

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
)

// Firewall backends.
const (
	BackendIPTables = "iptables"
	BackendNFTables = "nftables"
)

// DefaultIsolationCIDR covers the private range lateral movement is expected in.
const DefaultIsolationCIDR = "172.16.0.0/12"

// Firewall installs the outbound drop rule that isolates this host.
type Firewall struct {
	runner  CommandRunner
	backend string
	cidr    string
	logger  zerolog.Logger
}

// NewFirewall validates backend and cidr. IPv6 ranges are rejected.
func NewFirewall(runner CommandRunner, backend, cidr string, logger zerolog.Logger) (*Firewall, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	if backend == "" {
		backend = BackendIPTables
	}
	if backend != BackendIPTables && backend != BackendNFTables {
		return nil, fmt.Errorf("unknown firewall backend %q", backend)
	}

	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCIDR, cidr)
	}

	return &Firewall{
		runner:  runner,
		backend: backend,
		cidr:    ipNet.String(),
		logger:  logger.With().Str("component", "firewall").Logger(),
	}, nil
}

// Command returns the program and arguments Isolate runs.
func (f *Firewall) Command() (string, []string) {
	if f.backend == BackendNFTables {
		return "nft", []string{"add", "rule", "inet", "filter", "output", "ip", "daddr", f.cidr, "drop"}
	}
	return "iptables", []string{"-I", "OUTPUT", "-d", f.cidr, "-j", "DROP"}
}

// Isolate inserts the drop rule. Calling it twice inserts two rules.
func (f *Firewall) Isolate(ctx context.Context) error {
	name, args := f.Command()

	f.logger.Warn().Str("cidr", f.cidr).Str("backend", f.backend).Msg("isolating host")

	out, err := f.runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}

	f.logger.Info().Str("cidr", f.cidr).Msg("outbound traffic to range dropped")
	return nil
}
