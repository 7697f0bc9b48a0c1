package patrol

import (
	"math"
	"time"

	"vigil/internal/platform/config"
)

// Motion-consistency band. A coefficient of variation below the floor means
// the sensor readings are suspiciously flat (device left on a desk); above
// the ceiling they are suspiciously erratic (shaken to fake movement).
const (
	motionFlatCV    = 0.05
	motionErraticCV = 0.75
)

// Battery plausibility tolerances, in battery percentage points between
// consecutive marks.
const (
	batteryRiseTolerance = 3
	batteryDropTolerance = 25
	batteryPenaltySpan   = 30
)

// Timing adherence: a mark within gracePeriod of its expected offset scores
// full; adherence decays linearly to zero at failurePeriod.
const (
	timingGracePeriod   = 10 * time.Minute
	timingFailurePeriod = 60 * time.Minute
)

// Breakdown carries the per-component scores (each 0-1) behind a trust
// score, surfaced for operator review of suspicious executions.
type Breakdown struct {
	Completion float64 `json:"completion"`
	Motion     float64 `json:"motion"`
	Battery    float64 `json:"battery"`
	Timing     float64 `json:"timing"`
}

// TrustScore blends the four evidence components into a 0-100 confidence
// that the execution reflects genuine presence. Weights come from config;
// the blend is normalized by the weight sum so a misconfigured set of
// weights cannot push the score past 100.
func TrustScore(cfg config.TrustConfig, exec *Execution, tmpl *Template, marks []Mark) (float64, Breakdown) {
	b := Breakdown{
		Completion: clamp01(exec.CompletionRatio()),
		Motion:     motionConsistency(marks),
		Battery:    batteryPlausibility(marks),
		Timing:     timingAdherence(exec, tmpl, marks),
	}

	weightSum := cfg.CompletionWeight + cfg.MotionWeight + cfg.BatteryWeight + cfg.TimingWeight
	if weightSum <= 0 {
		return 0, b
	}
	blended := cfg.CompletionWeight*b.Completion +
		cfg.MotionWeight*b.Motion +
		cfg.BatteryWeight*b.Battery +
		cfg.TimingWeight*b.Timing
	return 100 * blended / weightSum, b
}

// FinalState decides the terminal state on completion. A trust score below
// the suspicious floor overrides the completion ratio.
func FinalState(cfg config.TrustConfig, completionRatio, trustScore float64) ExecutionState {
	if trustScore < cfg.SuspiciousFloor {
		return StateSuspicious
	}
	if completionRatio >= cfg.CompletionThreshold {
		return StateCompleted
	}
	return StatePartial
}

// motionConsistency scores the spread of motion samples across marks.
// Fewer than two samples carry no signal and score neutral.
func motionConsistency(marks []Mark) float64 {
	if len(marks) < 2 {
		return 1
	}
	var sum float64
	for _, m := range marks {
		sum += m.MotionScore
	}
	mean := sum / float64(len(marks))
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, m := range marks {
		d := m.MotionScore - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(marks))) / mean

	switch {
	case cv < motionFlatCV:
		return clamp01(cv / motionFlatCV)
	case cv > motionErraticCV:
		return clamp01(1 - (cv-motionErraticCV)/motionErraticCV)
	default:
		return 1
	}
}

// batteryPlausibility penalizes the worst implausible level change between
// consecutive marks. Discharge is expected; a rising level mid-patrol is
// not, beyond a small charger-contact tolerance.
func batteryPlausibility(marks []Mark) float64 {
	if len(marks) < 2 {
		return 1
	}
	var worst float64
	for i := 1; i < len(marks); i++ {
		delta := marks[i].BatteryLevel - marks[i-1].BatteryLevel
		var excess float64
		if delta > 0 {
			excess = delta - batteryRiseTolerance
		} else {
			excess = -delta - batteryDropTolerance
		}
		if excess > worst {
			worst = excess
		}
	}
	return clamp01(1 - worst/batteryPenaltySpan)
}

// timingAdherence averages, over marks with a known checkpoint, how close
// each scan landed to its expected offset from patrol start. Deviations are
// measured on a 24-hour circle.
func timingAdherence(exec *Execution, tmpl *Template, marks []Mark) float64 {
	if exec.StartedAt == nil || tmpl == nil || len(marks) == 0 {
		return 1
	}
	var total float64
	var counted int
	for _, m := range marks {
		cp, ok := tmpl.CheckpointByCode(m.CheckpointCode)
		if !ok {
			continue
		}
		dev := CircularDeviation(m.Timestamp.Sub(*exec.StartedAt), cp.ExpectedOffset)
		total += clamp01(1 - float64(dev-timingGracePeriod)/float64(timingFailurePeriod-timingGracePeriod))
		counted++
	}
	if counted == 0 {
		return 1
	}
	return total / float64(counted)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
