package gesture

import (
	"sync"
	"time"

	"github.com/banshee-data/gestures/internal/timeutil"
)

// RejectActivationConsumed marks an activation gesture that armed the
// system and was therefore consumed rather than forwarded.
const RejectActivationConsumed RejectionReason = "activation_consumed"

// maxAdaptiveThreshold caps the per-gesture adaptive confidence threshold
// so a gesture can never be raised out of reach entirely.
const maxAdaptiveThreshold = 0.95

// ArmedState is the two-stage-activation status reported to subscribers.
type ArmedState struct {
	Armed       bool  `json:"armed"`
	RemainingMs int64 `json:"remaining_ms"`
}

// Guard is the six-layer false-positive mitigation stage. Every classifier
// result passes through Evaluate, which short-circuits on the first layer
// that rejects and returns a re-stamped copy of the result. The adaptive
// feedback loop (ReportFalsePositive / ReportTruePositive) tunes the
// per-gesture thresholds and the global cooldown that layers 4–5 consult.
type Guard struct {
	mu    sync.Mutex
	cfg   EngineConfig
	clock timeutil.Clock

	geofenceActive bool

	// two-stage activation
	armed        bool
	armedUntilMs int64
	armTimer     timeutil.Timer
	onArmed      func(ArmedState)
	pendingArmed []ArmedState

	// adaptive state
	thresholds    map[string]float64 // per-gesture confidence floor
	cooldownMs    int64              // current escalated global cooldown
	tpStreak      map[string]int
	consecutiveFP int

	// rate limiting, all in sample-time milliseconds
	lastAcceptedMs   int64
	lastPerGestureMs map[string]int64
	acceptedMs       []int64 // sliding minute window
}

// NewGuard builds a guard with the configured defaults. The geofence flag
// starts active.
func NewGuard(cfg EngineConfig, clock timeutil.Clock) *Guard {
	return &Guard{
		cfg:              cfg,
		clock:            clock,
		geofenceActive:   true,
		thresholds:       make(map[string]float64),
		cooldownMs:       cfg.GlobalCooldownMs,
		tpStreak:         make(map[string]int),
		lastPerGestureMs: make(map[string]int64),
	}
}

// SetArmedCallback registers the armed-state change notification hook.
func (g *Guard) SetArmedCallback(f func(ArmedState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onArmed = f
}

// SetGeofenceActive flips the external geofence gate.
func (g *Guard) SetGeofenceActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.geofenceActive = active
}

// Evaluate runs the six layers over a classifier result and the current
// activity context. It returns a copy of the result stamped with the final
// Accepted / RejectionReason verdict. Armed-state notifications are
// delivered after the lock is released, so a subscriber may call back into
// the guard.
func (g *Guard) Evaluate(r RecognitionResult, ctx ActivityContext) RecognitionResult {
	g.mu.Lock()
	out := g.evaluateLocked(r, ctx)
	cb, notes := g.flushArmedLocked()
	g.mu.Unlock()
	if cb != nil {
		for _, st := range notes {
			cb(st)
		}
	}
	return out
}

func (g *Guard) evaluateLocked(r RecognitionResult, ctx ActivityContext) RecognitionResult {
	reject := func(reason RejectionReason) RecognitionResult {
		r.Accepted = false
		r.RejectionReason = reason
		return r
	}

	// Layer 1: context gating.
	if ctx.Level.AtLeast(g.cfg.DisableAboveActivity) {
		return reject(RejectActivityTooHigh)
	}
	if !g.geofenceActive {
		return reject(RejectGeofenceInactive)
	}

	// Layer 2: two-stage activation.
	if g.cfg.ActivationGestureID != "" {
		g.expireArmLocked(r.Timestamp)
		if r.GestureID == g.cfg.ActivationGestureID {
			if r.Confidence >= g.effectiveThresholdLocked(r.GestureID) {
				g.armLocked(r.Timestamp)
			}
			return reject(RejectActivationConsumed)
		}
		if !g.armed {
			return reject(RejectActivationRequired)
		}
	}

	// Layer 3: classification pass-through.
	if r.RejectionReason == RejectNoiseClass {
		return reject(RejectNoiseClass)
	}
	if r.GestureID == "" {
		reason := r.RejectionReason
		if reason == RejectNone {
			reason = RejectNoMatch
		}
		return reject(reason)
	}

	// Layer 4: adaptive confidence threshold.
	if r.Confidence < g.effectiveThresholdLocked(r.GestureID) {
		return reject(RejectLowConfidence)
	}

	// Layer 5: rate limiting.
	if last, ok := g.lastPerGestureMs[r.GestureID]; ok && r.Timestamp-last < g.cfg.DedupWindowMs {
		return reject(RejectDuplicate)
	}
	if g.lastAcceptedMs != 0 && r.Timestamp-g.lastAcceptedMs < g.cooldownMs {
		return reject(RejectCooldown)
	}
	cut := r.Timestamp - 60_000
	kept := g.acceptedMs[:0]
	for _, ts := range g.acceptedMs {
		if ts > cut {
			kept = append(kept, ts)
		}
	}
	g.acceptedMs = kept
	if g.cfg.MaxGesturesPerMinute > 0 && len(g.acceptedMs) >= g.cfg.MaxGesturesPerMinute {
		return reject(RejectRateLimit)
	}

	// Layer 6: acceptance.
	g.lastAcceptedMs = r.Timestamp
	g.lastPerGestureMs[r.GestureID] = r.Timestamp
	g.acceptedMs = append(g.acceptedMs, r.Timestamp)
	if g.armed {
		g.disarmLocked(0) // one-shot: any acceptance disarms
	}
	r.Accepted = true
	r.RejectionReason = RejectNone
	return r
}

// effectiveThresholdLocked is max(global minimum, per-gesture adaptive).
func (g *Guard) effectiveThresholdLocked(gestureID string) float64 {
	t, ok := g.thresholds[gestureID]
	if !ok || t < g.cfg.MinConfidence {
		return g.cfg.MinConfidence
	}
	return t
}

// EffectiveThreshold exposes the current threshold for a gesture.
func (g *Guard) EffectiveThreshold(gestureID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.effectiveThresholdLocked(gestureID)
}

// CooldownMs exposes the current (possibly escalated) global cooldown.
func (g *Guard) CooldownMs() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldownMs
}

func (g *Guard) armLocked(nowMs int64) {
	g.armed = true
	g.armedUntilMs = nowMs + g.cfg.ActivationTimeoutMs
	if g.armTimer != nil {
		g.armTimer.Stop()
	}
	g.armTimer = g.clock.AfterFunc(time.Duration(g.cfg.ActivationTimeoutMs)*time.Millisecond, g.armExpired)
	g.pendingArmed = append(g.pendingArmed, ArmedState{Armed: true, RemainingMs: g.cfg.ActivationTimeoutMs})
}

func (g *Guard) disarmLocked(remainingMs int64) {
	g.armed = false
	g.armedUntilMs = 0
	if g.armTimer != nil {
		g.armTimer.Stop()
		g.armTimer = nil
	}
	g.pendingArmed = append(g.pendingArmed, ArmedState{Armed: false, RemainingMs: remainingMs})
}

// flushArmedLocked hands the queued notifications and the callback to the
// caller, which must deliver them after unlocking.
func (g *Guard) flushArmedLocked() (func(ArmedState), []ArmedState) {
	notes := g.pendingArmed
	g.pendingArmed = nil
	return g.onArmed, notes
}

// expireArmLocked lazily disarms when the sample-time window has lapsed,
// covering replayed streams where the wall-clock timer is irrelevant.
func (g *Guard) expireArmLocked(nowMs int64) {
	if g.armed && nowMs >= g.armedUntilMs {
		g.disarmLocked(0)
	}
}

// armExpired is the wall-clock expiry path.
func (g *Guard) armExpired() {
	g.mu.Lock()
	if g.armed {
		g.disarmLocked(0)
	}
	cb, notes := g.flushArmedLocked()
	g.mu.Unlock()
	if cb != nil {
		for _, st := range notes {
			cb(st)
		}
	}
}

// Armed reports the current armed state.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// ReportFalsePositive raises the gesture's adaptive threshold
// multiplicatively (capped) and escalates the global cooldown.
func (g *Guard) ReportFalsePositive(gestureID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.effectiveThresholdLocked(gestureID) * g.cfg.FPThresholdFactor
	if t > maxAdaptiveThreshold {
		t = maxAdaptiveThreshold
	}
	g.thresholds[gestureID] = t

	g.cooldownMs = g.cooldownMs * 3 / 2
	if g.cooldownMs > g.cfg.MaxCooldownMs {
		g.cooldownMs = g.cfg.MaxCooldownMs
	}
	g.tpStreak[gestureID] = 0
	g.consecutiveFP++
}

// ReportTruePositive accumulates the gesture's consecutive-true-positive
// streak; a full streak relaxes the threshold by a small step (floored at
// the global minimum) and halves the cooldown back toward its default.
func (g *Guard) ReportTruePositive(gestureID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFP = 0
	g.tpStreak[gestureID]++
	if g.tpStreak[gestureID] < g.cfg.TPCountBeforeRelax {
		return
	}
	g.tpStreak[gestureID] = 0

	t := g.effectiveThresholdLocked(gestureID) - g.cfg.RelaxStep
	if t < g.cfg.MinConfidence {
		t = g.cfg.MinConfidence
	}
	g.thresholds[gestureID] = t

	g.cooldownMs /= 2
	if g.cooldownMs < g.cfg.GlobalCooldownMs {
		g.cooldownMs = g.cfg.GlobalCooldownMs
	}
}

// NeedsRecalibration reports whether consecutive false positives have hit
// the advisory recalibration count.
func (g *Guard) NeedsRecalibration() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutiveFP >= g.cfg.RecalibrationFPCount
}

// Reset clears transient state: arming (cancelling its timer), dedup and
// rate windows. Adaptive thresholds and cooldown escalation survive a
// stop/start cycle; they are learned, not transient.
func (g *Guard) Reset() {
	g.mu.Lock()
	if g.armed {
		g.disarmLocked(0)
	}
	if g.armTimer != nil {
		g.armTimer.Stop()
		g.armTimer = nil
	}
	g.lastAcceptedMs = 0
	g.lastPerGestureMs = make(map[string]int64)
	g.acceptedMs = nil
	g.consecutiveFP = 0
	cb, notes := g.flushArmedLocked()
	g.mu.Unlock()
	if cb != nil {
		for _, st := range notes {
			cb(st)
		}
	}
}
