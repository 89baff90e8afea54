package nn

import "math"

// WarmupCosineSchedule ramps the learning rate linearly over the warmup
// steps, then decays it along a cosine curve down to zero at totalSteps.
// Step must be called once per optimization step, not once per epoch.
type WarmupCosineSchedule struct {
	opt         *AdamW
	baseLR      float64
	warmupSteps int
	totalSteps  int
	step        int
}

// NewWarmupCosineSchedule binds a schedule to an optimizer. totalSteps is
// the full decay horizon in optimization steps; it is an explicit argument
// so callers never fall back to reusing the epoch count.
func NewWarmupCosineSchedule(opt *AdamW, warmupSteps, totalSteps int) *WarmupCosineSchedule {
	s := &WarmupCosineSchedule{
		opt:         opt,
		baseLR:      opt.LR(),
		warmupSteps: warmupSteps,
		totalSteps:  totalSteps,
	}
	// the very first optimizer update already runs on the ramp, not at
	// the base rate
	opt.SetLR(s.baseLR * s.factor(0))
	return s
}

// Step advances the schedule and updates the optimizer's learning rate.
func (s *WarmupCosineSchedule) Step() {
	s.step++
	s.opt.SetLR(s.baseLR * s.factor(s.step))
}

// LRAt reports the learning rate the schedule would set at a given step.
func (s *WarmupCosineSchedule) LRAt(step int) float64 {
	return s.baseLR * s.factor(step)
}

func (s *WarmupCosineSchedule) factor(step int) float64 {
	if s.warmupSteps > 0 && step < s.warmupSteps {
		return float64(step) / float64(s.warmupSteps)
	}
	if step >= s.totalSteps {
		return 0
	}
	progress := float64(step-s.warmupSteps) / float64(s.totalSteps-s.warmupSteps)
	return 0.5 * (1 + math.Cos(math.Pi*progress))
}
