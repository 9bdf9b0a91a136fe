package detection

import (
	"bytes"

	"github.com/nshruti113/ddos-detector/internal/models"
)

// Signature is the per-event heuristic class
type Signature int

const (
	SignatureNone Signature = iota
	SignatureSYN
	SignatureHTTP
	SignatureICMP
)

func (s Signature) String() string {
	switch s {
	case SignatureSYN:
		return "syn"
	case SignatureHTTP:
		return "http"
	case SignatureICMP:
		return "icmp"
	default:
		return "none"
	}
}

var httpMarkers = [][]byte{[]byte("GET"), []byte("POST"), []byte("HTTP")}

// Classify maps one event to at most one signature, checked in order
// SYN, HTTP, ICMP.
func Classify(ev models.PacketEvent) Signature {
	switch ev.Protocol {
	case models.ProtocolTCP:
		if ev.HasFlags(models.FlagSYN) && !ev.HasFlags(models.FlagACK) {
			return SignatureSYN
		}
		if (ev.DstPort == 80 || ev.DstPort == 443) && hasHTTPMarker(ev.Payload) {
			return SignatureHTTP
		}
	case models.ProtocolICMP:
		return SignatureICMP
	}
	return SignatureNone
}

func hasHTTPMarker(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	for _, m := range httpMarkers {
		if bytes.Contains(payload, m) {
			return true
		}
	}
	return false
}
