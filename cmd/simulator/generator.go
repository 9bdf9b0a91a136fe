package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nshruti113/ddos-detector/internal/models"
)

// Traffic modes
const (
	ModeNormal = "normal"
	ModeSYN    = "syn"
	ModeUDP    = "udp"
	ModeHTTP   = "http"
	ModeICMP   = "icmp"
	ModeDemo   = "demo"
)

var (
	httpPorts = []uint16{80, 443}
	synPorts  = []uint16{80, 443, 8080, 22}
	udpPorts  = []uint16{53, 123, 161, 1900}

	httpPaths = []string{"/", "/api/search", "/login", "/api/products", "/checkout"}
)

// Generator builds PacketEvents for one traffic mode
type Generator struct {
	mode    string
	sources []string
	rng     *rand.Rand
}

func NewGenerator(mode string, sources int, seed uint64) (*Generator, error) {
	switch mode {
	case ModeNormal, ModeSYN, ModeUDP, ModeHTTP, ModeICMP:
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if sources < 1 {
		sources = 1
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Generator{
		mode:    mode,
		sources: generateBotnet(rng, sources),
		rng:     rng,
	}, nil
}

// Next returns one event. Normal traffic comes from random addresses;
// attack modes cycle through the generator's fixed source set.
func (g *Generator) Next() models.PacketEvent {
	ev := models.PacketEvent{Timestamp: time.Now()}

	switch g.mode {
	case ModeNormal:
		return g.normal(ev)
	case ModeSYN:
		ev.SourceID = g.source()
		ev.Protocol = models.ProtocolTCP
		ev.TCPFlags = models.FlagSYN
		ev.DstPort = pick(g.rng, synPorts)
		ev.SizeBytes = 60
	case ModeUDP:
		ev.SourceID = g.source()
		ev.Protocol = models.ProtocolUDP
		ev.DstPort = pick(g.rng, udpPorts)
		ev.SizeBytes = uint32(g.rng.IntN(1400) + 100)
	case ModeHTTP:
		ev.SourceID = g.source()
		ev.Protocol = models.ProtocolTCP
		ev.TCPFlags = models.FlagPSH | models.FlagACK
		ev.DstPort = pick(g.rng, httpPorts)
		ev.Payload = []byte("GET " + pick(g.rng, httpPaths) + " HTTP/1.1\r\n")
		ev.SizeBytes = uint32(len(ev.Payload) + 54)
	case ModeICMP:
		ev.SourceID = g.source()
		ev.Protocol = models.ProtocolICMP
		ev.SizeBytes = 98
	}
	return ev
}

// normal mixes established HTTPS, DNS and the occasional handshake
func (g *Generator) normal(ev models.PacketEvent) models.PacketEvent {
	ev.SourceID = randomIP(g.rng)
	switch n := g.rng.IntN(10); {
	case n < 6:
		ev.Protocol = models.ProtocolTCP
		ev.TCPFlags = models.FlagACK
		ev.DstPort = 443
		ev.SizeBytes = uint32(g.rng.IntN(1000) + 100)
	case n < 9:
		ev.Protocol = models.ProtocolUDP
		ev.DstPort = 53
		ev.SizeBytes = uint32(g.rng.IntN(400) + 60)
	default:
		ev.Protocol = models.ProtocolTCP
		ev.TCPFlags = models.FlagSYN
		ev.DstPort = 443
		ev.SizeBytes = 60
	}
	return ev
}

func (g *Generator) source() string {
	return g.sources[g.rng.IntN(len(g.sources))]
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

// randomIP returns a public-looking IPv4 address outside 10/8, 127/8 and 0/8
func randomIP(rng *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d.%d", rng.IntN(90)+11, rng.IntN(256), rng.IntN(256), rng.IntN(254)+1)
}

// Helper function to generate botnet IPs
func generateBotnet(rng *rand.Rand, size int) []string {
	ips := make([]string, size)
	for i := range ips {
		ips[i] = randomIP(rng)
	}
	return ips
}
