// Package pcapsrc reads packets from a live interface or a pcap file.
// It needs libpcap at build and run time.
package pcapsrc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/thejerf/suture/v4"

	"github.com/nshruti113/ddos-detector/internal/capture"
	"github.com/nshruti113/ddos-detector/internal/logging"
)

type Config struct {
	Interface   string
	PcapFile    string
	BPFFilter   string
	Snaplen     int
	Promiscuous bool
}

// Source is a suture service feeding captured packets into an Ingester
type Source struct {
	cfg Config
	ing capture.Ingester
}

func New(cfg Config, ing capture.Ingester) (*Source, error) {
	if cfg.Interface == "" && cfg.PcapFile == "" {
		return nil, errors.New("pcapsrc: interface or pcap file required")
	}
	if cfg.Snaplen <= 0 {
		cfg.Snaplen = 1600
	}
	return &Source{cfg: cfg, ing: ing}, nil
}

func (s *Source) String() string {
	if s.cfg.PcapFile != "" {
		return "pcap:" + s.cfg.PcapFile
	}
	return "pcap:" + s.cfg.Interface
}

func (s *Source) open() (*pcap.Handle, error) {
	if s.cfg.PcapFile != "" {
		return pcap.OpenOffline(s.cfg.PcapFile)
	}
	// a short read timeout lets the packet channel notice cancellation
	return pcap.OpenLive(s.cfg.Interface, int32(s.cfg.Snaplen), s.cfg.Promiscuous, 500*time.Millisecond)
}

// Serve captures until ctx is done. A pcap file is replayed once.
func (s *Source) Serve(ctx context.Context) error {
	log := logging.Component("capture")

	handle, err := s.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", s, err)
	}
	defer handle.Close()

	if s.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BPFFilter); err != nil {
			return fmt.Errorf("set bpf filter %q: %w", s.cfg.BPFFilter, err)
		}
	}

	log.Info().
		Str("source", s.String()).
		Str("bpf", s.cfg.BPFFilter).
		Msg("📡 packet capture started")

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	err = capture.Run(ctx, src.Packets(), s.ing)

	if err == nil && s.cfg.PcapFile != "" {
		return suture.ErrDoNotRestart
	}
	return err
}

// Interfaces lists capture-capable devices with their addresses
func Interfaces() ([]pcap.Interface, error) {
	return pcap.FindAllDevs()
}
