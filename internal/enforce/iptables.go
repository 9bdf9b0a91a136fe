// Package enforce holds Enforcer implementations backed by the host firewall.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
)

// ErrInvalidSource is returned for identifiers that are not IP addresses
var ErrInvalidSource = errors.New("source is not an IP address")

// runFunc executes a command and returns its combined output
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Iptables blocks sources with a DROP rule in one chain. A -C probe before
// each change makes Block and Unblock idempotent.
type Iptables struct {
	Chain   string
	Binary  string
	Binary6 string
	run     runFunc
	log     zerolog.Logger
}

func NewIptables(chain, binary string) *Iptables {
	if chain == "" {
		chain = "INPUT"
	}
	if binary == "" {
		binary = "iptables"
	}
	return &Iptables{
		Chain:   chain,
		Binary:  binary,
		Binary6: strings.Replace(binary, "iptables", "ip6tables", 1),
		run:     execRun,
		log:     logging.Component("enforcer"),
	}
}

func (i *Iptables) Name() string { return "iptables" }

func (i *Iptables) Block(ctx context.Context, sourceID string) error {
	bin, err := i.binaryFor(sourceID)
	if err != nil {
		return err
	}

	if i.ruleExists(ctx, bin, sourceID) {
		return nil
	}

	if out, err := i.run(ctx, bin, i.ruleArgs("-A", sourceID)...); err != nil {
		return fmt.Errorf("%s -A %s: %w: %s", bin, i.Chain, err, strings.TrimSpace(string(out)))
	}

	i.log.Debug().Str("source", sourceID).Str("chain", i.Chain).Msg("drop rule added")
	return nil
}

func (i *Iptables) Unblock(ctx context.Context, sourceID string) error {
	bin, err := i.binaryFor(sourceID)
	if err != nil {
		return err
	}

	if !i.ruleExists(ctx, bin, sourceID) {
		return nil
	}

	if out, err := i.run(ctx, bin, i.ruleArgs("-D", sourceID)...); err != nil {
		return fmt.Errorf("%s -D %s: %w: %s", bin, i.Chain, err, strings.TrimSpace(string(out)))
	}

	i.log.Debug().Str("source", sourceID).Str("chain", i.Chain).Msg("drop rule removed")
	return nil
}

// ruleExists treats any -C failure as "absent"; a real failure then
// surfaces from the following -A or -D.
func (i *Iptables) ruleExists(ctx context.Context, bin, sourceID string) bool {
	_, err := i.run(ctx, bin, i.ruleArgs("-C", sourceID)...)
	return err == nil
}

func (i *Iptables) ruleArgs(op, sourceID string) []string {
	return []string{op, i.Chain, "-s", sourceID, "-j", "DROP"}
}

func (i *Iptables) binaryFor(sourceID string) (string, error) {
	addr, err := netip.ParseAddr(sourceID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, sourceID)
	}
	if addr.Unmap().Is4() {
		return i.Binary, nil
	}
	return i.Binary6, nil
}
