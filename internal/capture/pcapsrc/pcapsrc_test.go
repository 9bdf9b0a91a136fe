package pcapsrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshruti113/ddos-detector/internal/models"
)

type nopIngester struct{}

func (nopIngester) Ingest(models.PacketEvent) error { return nil }

func TestNewRequiresInput(t *testing.T) {
	_, err := New(Config{}, nopIngester{})
	assert.Error(t, err)
}

func TestSourceName(t *testing.T) {
	s, err := New(Config{PcapFile: "/tmp/flood.pcap"}, nopIngester{})
	require.NoError(t, err)
	assert.Equal(t, "pcap:/tmp/flood.pcap", s.String())
	assert.Equal(t, 1600, s.cfg.Snaplen)

	s, err = New(Config{Interface: "eth0", Snaplen: 256}, nopIngester{})
	require.NoError(t, err)
	assert.Equal(t, "pcap:eth0", s.String())
	assert.Equal(t, 256, s.cfg.Snaplen)
}
