package models

import (
	"fmt"
	"strings"
	"time"
)

// Protocol is the transport protocol of an observed packet
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolOther Protocol = "OTHER"
)

// Valid reports whether p is one of the known protocols
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolOther:
		return true
	}
	return false
}

// TCP flag bits as they appear in the TCP header
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

// PacketEvent represents a single observed network packet
type PacketEvent struct {
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  Protocol  `json:"protocol"`
	TCPFlags  uint8     `json:"tcp_flags,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	SizeBytes uint32    `json:"size_bytes"`
}

// HasFlags reports whether every bit in mask is set
func (e PacketEvent) HasFlags(mask uint8) bool {
	return e.TCPFlags&mask == mask
}

// AttackType labels a detected attack
type AttackType int

const (
	GeneralDoS AttackType = iota
	SynFlood
	HTTPFlood
	ICMPFlood
)

var attackNames = map[AttackType]string{
	GeneralDoS: "General DoS",
	SynFlood:   "SYN flood",
	HTTPFlood:  "HTTP flood",
	ICMPFlood:  "ICMP flood",
}

func (a AttackType) String() string {
	if name, ok := attackNames[a]; ok {
		return name
	}
	return fmt.Sprintf("AttackType(%d)", int(a))
}

// Label is the collector-facing form: lowercase with spaces removed
func (a AttackType) Label() string {
	return strings.ReplaceAll(strings.ToLower(a.String()), " ", "")
}

func (a AttackType) MarshalText() ([]byte, error) {
	return []byte(a.Label()), nil
}

func (a *AttackType) UnmarshalText(text []byte) error {
	for t := range attackNames {
		if t.Label() == string(text) {
			*a = t
			return nil
		}
	}
	return fmt.Errorf("unknown attack type %q", text)
}

// Alert represents a raised detection for one source
type Alert struct {
	ID            string     `json:"id"`
	Time          time.Time  `json:"time"`
	SourceID      string     `json:"source_id"`
	AttackType    AttackType `json:"attack_type"`
	EvidenceCount int        `json:"evidence_count"`
}

// AttackReport is the payload delivered to a remote collector
type AttackReport struct {
	SourceIP       string `json:"sourceIP"`
	TargetService  string `json:"targetService"`
	AttackType     string `json:"attackType"`
	TrafficVolume  int    `json:"trafficVolume"`
	Duration       int    `json:"duration"`
	AdditionalInfo string `json:"additionalInfo"`
}

// SourceStats is a read-only view of one tracked source
type SourceStats struct {
	SourceID    string `json:"source_id"`
	Total       uint64 `json:"total"`
	WindowCount int    `json:"window_count"`
	SynCount    int    `json:"syn_count"`
	HTTPCount   int    `json:"http_count"`
	ICMPCount   int    `json:"icmp_count"`
	Blocked     bool   `json:"blocked"`
}

// AlertView is an Alert annotated with the source's current block status
type AlertView struct {
	Alert
	Blocked bool `json:"blocked"`
}

// Statistics is a point-in-time snapshot for dashboards
type Statistics struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	TrackedSources int           `json:"tracked_sources"`
	TopSources     []SourceStats `json:"top_sources"`
	RecentAlerts   []AlertView   `json:"recent_alerts"`
	BlockedSources []string      `json:"blocked_sources"`
	QueueDepth     int           `json:"queue_depth"`
}
