package enforce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFirewall emulates iptables rule bookkeeping for -C/-A/-D
type fakeFirewall struct {
	mu    sync.Mutex
	rules map[string]bool
	calls []string
	fail  string
}

func (f *fakeFirewall) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	key := name + " " + strings.Join(args[1:], " ")

	switch args[0] {
	case "-C":
		if f.rules[key] {
			return nil, nil
		}
		return []byte("Bad rule"), errors.New("exit status 1")
	case f.fail:
		return []byte("Permission denied (you must be root)"), errors.New("exit status 4")
	case "-A":
		f.rules[key] = true
	case "-D":
		delete(f.rules, key)
	}
	return nil, nil
}

func newFakeIptables() (*Iptables, *fakeFirewall) {
	fw := &fakeFirewall{rules: make(map[string]bool)}
	ipt := NewIptables("", "")
	ipt.run = fw.run
	return ipt, fw
}

func TestIptablesBlockIsIdempotent(t *testing.T) {
	ipt, fw := newFakeIptables()
	ctx := context.Background()

	require.NoError(t, ipt.Block(ctx, "203.0.113.9"))
	require.NoError(t, ipt.Block(ctx, "203.0.113.9"))

	assert.Len(t, fw.rules, 1)
	assert.Equal(t, []string{
		"iptables -C INPUT -s 203.0.113.9 -j DROP",
		"iptables -A INPUT -s 203.0.113.9 -j DROP",
		"iptables -C INPUT -s 203.0.113.9 -j DROP",
	}, fw.calls)

	require.NoError(t, ipt.Unblock(ctx, "203.0.113.9"))
	require.NoError(t, ipt.Unblock(ctx, "203.0.113.9"))
	assert.Empty(t, fw.rules)
}

func TestIptablesIPv6UsesIp6tables(t *testing.T) {
	ipt, fw := newFakeIptables()

	require.NoError(t, ipt.Block(context.Background(), "2001:db8::1"))
	assert.True(t, fw.rules["ip6tables INPUT -s 2001:db8::1 -j DROP"])
}

func TestIptablesRejectsNonIP(t *testing.T) {
	ipt, fw := newFakeIptables()

	err := ipt.Block(context.Background(), "-F")
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.Empty(t, fw.calls)
}

func TestIptablesFailureCarriesOutput(t *testing.T) {
	ipt, fw := newFakeIptables()
	fw.fail = "-A"

	err := ipt.Block(context.Background(), "203.0.113.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Permission denied")
	assert.Empty(t, fw.rules)
}

func TestLogEnforcer(t *testing.T) {
	l := NewLog()
	ctx := context.Background()

	require.NoError(t, l.Block(ctx, "203.0.113.9"))
	require.NoError(t, l.Block(ctx, "203.0.113.9"))
	assert.Equal(t, 1, l.Len())

	require.NoError(t, l.Unblock(ctx, "203.0.113.9"))
	require.NoError(t, l.Unblock(ctx, "203.0.113.9"))
	assert.Zero(t, l.Len())
	assert.Equal(t, "log", l.Name())
}
