// Package capture turns decoded packets into engine events.
package capture

import (
	"context"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// PayloadSample is the number of payload bytes kept per event
const PayloadSample = 64

// Ingester accepts events; detection.Engine satisfies it
type Ingester interface {
	Ingest(ev models.PacketEvent) error
}

// Decode extracts a PacketEvent from a packet. ok is false for packets
// without an IPv4 or IPv6 layer.
func Decode(pkt gopacket.Packet) (ev models.PacketEvent, ok bool) {
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		ev.SourceID = ip.SrcIP.String()
	case *layers.IPv6:
		ev.SourceID = ip.SrcIP.String()
	default:
		return ev, false
	}

	md := pkt.Metadata()
	ev.Timestamp = md.Timestamp
	ev.SizeBytes = uint32(md.Length)
	if ev.SizeBytes == 0 {
		ev.SizeBytes = uint32(len(pkt.Data()))
	}

	ev.Protocol = models.ProtocolOther
	switch l := pkt.TransportLayer().(type) {
	case *layers.TCP:
		ev.Protocol = models.ProtocolTCP
		ev.TCPFlags = tcpFlags(l)
		ev.DstPort = uint16(l.DstPort)
		ev.Payload = sample(l.Payload)
		return ev, true
	case *layers.UDP:
		ev.Protocol = models.ProtocolUDP
		ev.DstPort = uint16(l.DstPort)
		ev.Payload = sample(l.Payload)
		return ev, true
	}

	if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
		ev.Protocol = models.ProtocolICMP
	}
	return ev, true
}

func tcpFlags(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= models.FlagFIN
	}
	if tcp.SYN {
		f |= models.FlagSYN
	}
	if tcp.RST {
		f |= models.FlagRST
	}
	if tcp.PSH {
		f |= models.FlagPSH
	}
	if tcp.ACK {
		f |= models.FlagACK
	}
	if tcp.URG {
		f |= models.FlagURG
	}
	return f
}

func sample(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	n := len(payload)
	if n > PayloadSample {
		n = PayloadSample
	}
	out := make([]byte, n)
	copy(out, payload[:n])
	return out
}

// Run decodes packets and hands them to ing until ctx is done or packets
// is closed. Rejected events are counted by the pipeline, not here.
func Run(ctx context.Context, packets <-chan gopacket.Packet, ing Ingester) error {
	log := logging.Component("capture")
	var seen uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				log.Info().Uint64("packets", seen).Msg("packet source exhausted")
				return nil
			}
			seen++
			handle(pkt, ing, &log)
		}
	}
}

func handle(pkt gopacket.Packet, ing Ingester, log *zerolog.Logger) {
	ev, ok := Decode(pkt)
	if !ok {
		metrics.PacketsUndecodable.Inc()
		if el := pkt.ErrorLayer(); el != nil {
			log.Debug().Err(el.Error()).Msg("undecodable packet")
		}
		return
	}
	metrics.PacketsCaptured.Inc()
	_ = ing.Ingest(ev)
}
