package detection

import "github.com/nshruti113/ddos-detector/internal/models"

// Verdict is the outcome of a threshold evaluation that should alert
type Verdict struct {
	AttackType models.AttackType
	Evidence   int
}

// Evaluate applies the fixed-priority threshold rules to a pruned record.
// The first rule that matches wins:
//
//	window >= threshold      general path, refined by the dominant signature
//	syn    >= threshold/2    SynFlood
//	http   >= threshold/3    HTTPFlood
//	icmp   >= threshold/4    ICMPFlood
//
// A signature rule never fires on a zero counter, which matters only for
// thresholds small enough that the divided limit is zero.
func Evaluate(rec *TrafficRecord, threshold int) (Verdict, bool) {
	switch {
	case len(rec.Window) >= threshold:
		return refine(rec, threshold), true
	case rec.SynCount > 0 && rec.SynCount >= threshold/2:
		return Verdict{AttackType: models.SynFlood, Evidence: rec.SynCount}, true
	case rec.HTTPCount > 0 && rec.HTTPCount >= threshold/3:
		return Verdict{AttackType: models.HTTPFlood, Evidence: rec.HTTPCount}, true
	case rec.ICMPCount > 0 && rec.ICMPCount >= threshold/4:
		return Verdict{AttackType: models.ICMPFlood, Evidence: rec.ICMPCount}, true
	}
	return Verdict{}, false
}

// refine picks the largest signature counter, SYN before HTTP before ICMP on
// ties, and falls back to GeneralDoS when it does not exceed threshold/5.
func refine(rec *TrafficRecord, threshold int) Verdict {
	best := Verdict{AttackType: models.SynFlood, Evidence: rec.SynCount}
	if rec.HTTPCount > best.Evidence {
		best = Verdict{AttackType: models.HTTPFlood, Evidence: rec.HTTPCount}
	}
	if rec.ICMPCount > best.Evidence {
		best = Verdict{AttackType: models.ICMPFlood, Evidence: rec.ICMPCount}
	}

	if best.Evidence > threshold/5 {
		return best
	}
	return Verdict{AttackType: models.GeneralDoS, Evidence: len(rec.Window)}
}
