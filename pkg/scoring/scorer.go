// Package scoring turns per-turn signal sets into a progressive scam
// confidence score. The scorer is pure: the same signals, history, and turn
// position always produce the same score, and it never touches session
// state or the clock.
package scoring

import (
	"math"
	"sort"

	"github.com/decoylabs/scamtrap/pkg/signal"
)

// Threshold is the fixed detection boundary. A turn is flagged as a scam
// exactly when its confidence reaches this value.
const Threshold = 0.7

const (
	// singleSignalCap bounds a lone non-critical signal; one weak indicator
	// is never conclusive on its own.
	singleSignalCap = 0.55

	diversityBonus     = 0.15
	severityMultiplier = 1.3
	comboMultiplier    = 1.25

	turnRampStep      = 0.1
	turnRampMax       = 0.3
	patternBonus      = 0.1
	turnMultiplierCap = 1.4
	diminishingDecay  = 0.5
)

// Result is one turn's scoring outcome.
type Result struct {
	Confidence float64
	Detected   bool
}

// Scorer aggregates weighted signals into a confidence score. Construct
// once and share; it carries no mutable state.
type Scorer struct{}

// NewScorer returns a ready Scorer.
func NewScorer() *Scorer { return &Scorer{} }

// Score computes the confidence for the current turn. history holds the
// signal sets of prior turns, oldest first; turn is 1-based. An empty
// current set scores exactly 0 regardless of history.
func (s *Scorer) Score(current signal.Set, history []signal.Set, turn int) Result {
	if len(current) == 0 {
		return Result{Confidence: 0, Detected: false}
	}

	score := baseScore(current)
	if conversationCategories(current, history) >= 2 {
		score += diversityBonus
	}
	if current.HasCritical() {
		score *= severityMultiplier
	}
	if hasClassicCombo(current, history) {
		score *= comboMultiplier
	}
	score *= s.turnMultiplier(current, turn)
	if turn <= 1 {
		score = applyFirstTurnCap(current, score)
	}

	confidence := round2(clamp01(score))
	return Result{Confidence: confidence, Detected: confidence >= Threshold}
}

// baseScore sums weights with diminishing returns: the strongest signal
// counts in full, each further signal at half the previous share. A single
// non-critical signal is capped so it can never clear the threshold alone.
func baseScore(current signal.Set) float64 {
	weights := make([]float64, 0, len(current))
	for _, sig := range current {
		weights = append(weights, sig.Weight)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))

	score := 0.0
	factor := 1.0
	for _, w := range weights {
		score += w * factor
		factor *= diminishingDecay
	}

	if len(current) == 1 && !current.HasCritical() {
		score = math.Min(score, singleSignalCap)
	}
	return score
}

// conversationCategories counts distinct signal categories seen across the
// whole conversation including the current turn.
func conversationCategories(current signal.Set, history []signal.Set) int {
	seen := current.Categories()
	for _, set := range history {
		for c := range set.Categories() {
			seen[c] = true
		}
	}
	return len(seen)
}

// hasClassicCombo reports the payment-plus-pressure pattern: a payment or
// credential ask paired with an authority threat or urgency anywhere in the
// conversation so far.
func hasClassicCombo(current signal.Set, history []signal.Set) bool {
	payment := current.HasCategory(signal.CategoryPayment)
	pressure := current.HasCategory(signal.CategoryAuthorityThreat) ||
		current.HasCategory(signal.CategoryUrgency)
	for _, set := range history {
		payment = payment || set.HasCategory(signal.CategoryPayment)
		pressure = pressure || set.HasCategory(signal.CategoryAuthorityThreat) ||
			set.HasCategory(signal.CategoryUrgency)
	}
	return payment && pressure
}

// turnMultiplier escalates confidence as a conversation progresses. Turn 1
// gets no ramp; later turns ramp by 0.1 per turn up to +0.3, with a further
// bonus when cross-turn conversation patterns fire.
func (s *Scorer) turnMultiplier(current signal.Set, turn int) float64 {
	m := 1.0
	if turn > 1 {
		m += math.Min(turnRampStep*float64(turn-1), turnRampMax)
	}
	if current.HasCategory(signal.CategoryConversation) {
		m += patternBonus
	}
	return math.Min(m, turnMultiplierCap)
}

// applyFirstTurnCap bounds what a single opening message may score. The tier
// depends on how much of the scam playbook shows up at once; even a maximal
// first message stays below certainty.
func applyFirstTurnCap(current signal.Set, score float64) float64 {
	critical := current.HasCritical()
	pressure := current.HasCategory(signal.CategoryUrgency) ||
		current.HasCategory(signal.CategoryAuthorityThreat)
	payment := current.HasCategory(signal.CategoryPayment)

	switch {
	case critical && pressure:
		return math.Min(score, 0.95)
	case critical:
		return math.Max(math.Min(score, 0.80), 0.70)
	case payment && pressure:
		return math.Min(score, 0.85)
	case len(current.Categories()) >= 3:
		return math.Min(score, 0.75)
	case len(current) >= 3:
		return math.Min(score, 0.65)
	default:
		return math.Min(score, singleSignalCap)
	}
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

// round2 rounds to two decimals; detection compares the rounded value so
// surfaced confidence and the detected flag can never disagree.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
