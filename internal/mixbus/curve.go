package mixbus

import (
	"math"

	"sms-engine/internal/queue"
)

// apply returns the gain at fraction t in [0,1] along curve, ramping from
// start to end. Matches spec.md's GLOSSARY definitions:
//
//   - Exponential: target = start * (end/start)^t — hangs near the louder
//     side, so it is used as the default.
//   - Logarithmic: perceptually uniform — linear in dB across the span.
//   - Linear: amplitude-linear in t; only valid for correlated crossfades,
//     per spec.md, but the engine does not enforce that usage constraint —
//     it is the caller's responsibility, same as the original design.
func apply(curve queue.Curve, start, end, t float64) float64 {
	return ApplyCurve(curve, start, end, t)
}

// ApplyCurve is apply's exported form, reused by internal/scheduler for the
// per-flow volume envelope (spec.md §4.5), which ramps the same three curve
// shapes independently of any bus.
func ApplyCurve(curve queue.Curve, start, end, t float64) float64 {
	if t <= 0 {
		return start
	}
	if t >= 1 {
		return end
	}

	switch curve {
	case queue.CurveLinear:
		return start + (end-start)*t

	case queue.CurveLogarithmic:
		startDB := amplitudeToDB(start)
		endDB := amplitudeToDB(end)
		return dbToAmplitude(startDB + (endDB-startDB)*t)

	default: // CurveExponential
		if start <= 0 {
			// Can't raise zero to a fractional power meaningfully; fall
			// back to a logarithmic-feeling ramp anchored at a small floor.
			start = 1e-6
		}
		if end <= 0 {
			end = 1e-6
		}
		return start * math.Pow(end/start, t)
	}
}

const silenceFloorDB = -120.0

func amplitudeToDB(a float64) float64 {
	if a <= 0 {
		return silenceFloorDB
	}
	return 20 * math.Log10(a)
}

func dbToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
