package funnel

import (
	"fmt"

	"SwingPull/internal/domain/models"
)

// Context carries the fixed trigger-day anchors plus the count of days
// already confirmed stable before the bar being checked. A fresh Context is
// built for every condition call; conditions never mutate it.
type Context struct {
	AnchorHigh   float64
	AnchorVolume float64
	StableDays   int
}

// Condition is a stateless rule applied to each day inside the
// consolidation window.
//
//	ok=true,  note=""         — clean pass
//	ok=true,  note="WARN: …"  — soft pass, surfaced but never changes state
//	ok=false, note="…"        — hard failure, candidate becomes FALLOUT
//
// Conditions read only the supplied context and bar and perform no I/O, so
// any condition can be unit-tested with two plain values, and the ordered
// condition list can change without touching the engine.
type Condition interface {
	Name() string
	Evaluate(ec Context, bar models.DayBar) (bool, string)
}

// Stability requires the bar to trade within a tight band around the
// trigger-day high.
//
//	ceiling = anchor high × (1 + MaxUpPct/100)
//	floor   = anchor high × (1 − MaxDownPct/100)
//
// Anchoring on the trigger day's high rather than its close is deliberate:
// the high marks the full extent of the breakout. Consolidating below it is
// a healthy base; exceeding it is a new leg up, not consolidation.
type Stability struct {
	MaxUpPct   float64
	MaxDownPct float64
}

func (s Stability) Name() string { return "Stability" }

func (s Stability) Evaluate(ec Context, bar models.DayBar) (bool, string) {
	floor := ec.AnchorHigh * (1 - s.MaxDownPct/100)
	ceiling := ec.AnchorHigh * (1 + s.MaxUpPct/100)

	if bar.Low < floor {
		return false, fmt.Sprintf("low %.2f broke floor %.2f (-%.1f%% of anchor high %.2f) on Day %d",
			bar.Low, floor, s.MaxDownPct, ec.AnchorHigh, ec.StableDays+1)
	}
	if bar.High > ceiling {
		return false, fmt.Sprintf("high %.2f broke ceiling %.2f (+%.1f%% of anchor high %.2f) on Day %d",
			bar.High, ceiling, s.MaxUpPct, ec.AnchorHigh, ec.StableDays+1)
	}
	return true, ""
}

// Volume flags bars whose volume exceeds the trigger-day volume. Healthy
// consolidation should see declining volume; elevated volume suggests
// continued seller pressure or the start of a new directional move.
//
// Soft by default: the candidate keeps its state but the note is surfaced.
// With Hard set, elevated volume alone ejects the candidate.
type Volume struct {
	Hard bool
}

func (v Volume) Name() string { return "Volume" }

func (v Volume) Evaluate(ec Context, bar models.DayBar) (bool, string) {
	if ec.AnchorVolume <= 0 || bar.Volume <= ec.AnchorVolume {
		return true, ""
	}
	ratio := bar.Volume / ec.AnchorVolume
	note := fmt.Sprintf("volume %.1fx trigger day on Day %d", ratio, ec.StableDays+1)
	if v.Hard {
		return false, note
	}
	return true, "WARN: " + note
}
