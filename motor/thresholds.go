package motor

// ReferenceMillivolts is the supply voltage the base thresholds were measured at.
const ReferenceMillivolts = 4500

// supplyCoefficient models the +20% current per +1.5 V supply observed on
// the prototype.
const supplyCoefficient = 0.133

// Thresholds are the direction-specific current limits in mA.
type Thresholds struct {
	RaisingUnderload float64
	RaisingOverload  float64
	LoweringOverload float64
	NoCurrent        float64
}

// ScaleThresholds derives the limits for a supply of supplyMillivolts.
func ScaleThresholds(base Thresholds, supplyMillivolts uint32) Thresholds {
	delta := float64(supplyMillivolts) - ReferenceMillivolts
	scale := func(limit float64) float64 {
		return limit + supplyCoefficient*limit*delta/1000
	}
	return Thresholds{
		RaisingUnderload: scale(base.RaisingUnderload),
		RaisingOverload:  scale(base.RaisingOverload),
		LoweringOverload: scale(base.LoweringOverload),
		NoCurrent:        scale(base.NoCurrent),
	}
}
