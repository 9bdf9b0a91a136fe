package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttackTypeLabels(t *testing.T) {
	tests := []struct {
		at    AttackType
		name  string
		label string
	}{
		{GeneralDoS, "General DoS", "generaldos"},
		{SynFlood, "SYN flood", "synflood"},
		{HTTPFlood, "HTTP flood", "httpflood"},
		{ICMPFlood, "ICMP flood", "icmpflood"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.at.String())
		assert.Equal(t, tt.label, tt.at.Label())

		var back AttackType
		require.NoError(t, back.UnmarshalText([]byte(tt.label)))
		assert.Equal(t, tt.at, back)
	}

	var bad AttackType
	assert.Error(t, bad.UnmarshalText([]byte("slowloris")))
}

func TestAlertJSONUsesLabel(t *testing.T) {
	data, err := json.Marshal(AlertView{Alert: Alert{SourceID: "203.0.113.1", AttackType: SynFlood, EvidenceCount: 5}, Blocked: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"attack_type":"synflood"`)
	assert.Contains(t, string(data), `"blocked":true`)
	assert.Contains(t, string(data), `"source_id":"203.0.113.1"`)
}

func TestPacketEventFlags(t *testing.T) {
	ev := PacketEvent{TCPFlags: FlagSYN | FlagACK}
	assert.True(t, ev.HasFlags(FlagSYN))
	assert.True(t, ev.HasFlags(FlagSYN|FlagACK))
	assert.False(t, ev.HasFlags(FlagFIN))
	assert.Equal(t, uint8(0x02), FlagSYN)
	assert.Equal(t, uint8(0x10), FlagACK)

	assert.True(t, ProtocolICMP.Valid())
	assert.False(t, Protocol("SCTP").Valid())
}

func TestAttackReportFieldNames(t *testing.T) {
	data, err := json.Marshal(AttackReport{SourceIP: "203.0.113.1", AttackType: "synflood", TrafficVolume: 500, Duration: 10})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"sourceIP", "targetService", "attackType", "trafficVolume", "duration", "additionalInfo"} {
		assert.Contains(t, fields, key)
	}
}

func TestProtocolValid(t *testing.T) {
	assert.True(t, ProtocolICMP.Valid())
	assert.False(t, Protocol("SCTP").Valid())
	assert.False(t, Protocol("").Valid())
}
