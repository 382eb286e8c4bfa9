package intel

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Observation is one counterpart turn as seen by the profiler: the signal
// ids detected on that turn plus the raw text.
type Observation struct {
	SignalIDs []string
	Text      string
}

// Profile classifies a scammer into a behavioral archetype for the final
// report's agent notes.
type Profile struct {
	Type            string
	Confidence      float64
	SecondaryType   string
	Description     string
	ObservedTactics []string
}

// archetype describes one behavioral pattern. Primary signals carry the
// most weight, secondary signals less, and typical phrases add nuance when
// no rule fired for them.
type archetype struct {
	name        string
	description string
	primary     []string
	secondary   []string
	phrases     []string
}

const (
	primarySignalScore   = 3.0
	secondarySignalScore = 1.5
	phraseScore          = 0.5

	maxObservedTactics = 10
)

// archetypes is ordered; ties in scoring resolve to the earlier entry so
// profiling stays deterministic.
var archetypes = []archetype{
	{
		name:        "Urgency Enforcer",
		description: "Uses threats and time pressure to force immediate action",
		primary:     []string{"urgency", "time_pressure", "deadline", "immediate_action"},
		secondary:   []string{"account_threat", "account_suspension"},
		phrases:     []string{"immediate", "urgent", "act now", "last warning", "within", "minutes"},
	},
	{
		name:        "Payment Redirector",
		description: "Focuses on extracting payments through UPI or fees",
		primary:     []string{"payment_request", "upi_request", "account_number_request"},
		secondary:   []string{"otp_request", "pin_request", "card_details_request"},
		phrases:     []string{"pay", "₹", "rupees", "send", "transfer", "upi", "paytm", "gpay"},
	},
	{
		name:        "Authority Impersonator",
		description: "Pretends to be from legitimate organizations",
		primary:     []string{"authority_impersonation", "bank_impersonation", "government_impersonation"},
		secondary:   []string{"verify_link", "kyc_failure"},
		phrases:     []string{"rbi", "bank", "police", "income tax", "cyber cell", "official", "department"},
	},
	{
		name:        "Link Pusher",
		description: "Prioritizes getting victim to click malicious links",
		primary:     []string{"suspicious_link", "shortened_url", "misspelled_domain"},
		secondary:   []string{"login_request", "verify_link"},
		phrases:     []string{"click", "link", "http", "bit.ly", "download", "install", "update"},
	},
	{
		name:        "Persistence Attacker",
		description: "Repeatedly follows up with same demands",
		primary:     []string{"repetition", "copy_paste", "ignoring_questions"},
		secondary:   []string{"escalation"},
		phrases:     []string{"still waiting", "have you", "why haven't", "again", "reminder", "calling again"},
	},
}

// ProfileConversation scores every recorded turn against the archetype
// tables and returns the dominant behavioral profile. Pure recomputation
// over the turns, same as entity harvesting; no per-session profiler state.
func ProfileConversation(observations []Observation) Profile {
	scores := make([]float64, len(archetypes))
	seen := make(map[string]bool)
	var tactics []string

	for _, obs := range observations {
		ids := make(map[string]bool, len(obs.SignalIDs))
		for _, id := range obs.SignalIDs {
			ids[id] = true
			if !seen[id] {
				seen[id] = true
				tactics = append(tactics, id)
			}
		}
		lower := strings.ToLower(obs.Text)

		for i, a := range archetypes {
			for _, sig := range a.primary {
				if ids[sig] {
					scores[i] += primarySignalScore
				}
			}
			for _, sig := range a.secondary {
				if ids[sig] {
					scores[i] += secondarySignalScore
				}
			}
			for _, phrase := range a.phrases {
				if strings.Contains(lower, phrase) {
					scores[i] += phraseScore
				}
			}
		}
	}

	dominant := 0
	total := 0.0
	for i, s := range scores {
		total += s
		if s > scores[dominant] {
			dominant = i
		}
	}

	confidence := 0.0
	if total > 0 {
		confidence = math.Min(scores[dominant]/total, 1.0)
	}
	if len(tactics) > maxObservedTactics {
		tactics = tactics[:maxObservedTactics]
	}

	return Profile{
		Type:            archetypes[dominant].name,
		Confidence:      math.Round(confidence*100) / 100,
		SecondaryType:   secondaryArchetype(scores, dominant),
		Description:     archetypes[dominant].description,
		ObservedTactics: tactics,
	}
}

// secondaryArchetype returns the next-highest scoring archetype with any
// score at all, or "" when the dominant one stands alone.
func secondaryArchetype(scores []float64, dominant int) string {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	for _, i := range order {
		if i != dominant && scores[i] > 0 {
			return archetypes[i].name
		}
	}
	return ""
}

// Notes renders the profile as the agent-notes line of the final report.
func (p Profile) Notes(turns int) string {
	if len(p.ObservedTactics) == 0 {
		return fmt.Sprintf("No scam tactics identified across %d messages", turns)
	}
	note := fmt.Sprintf("Scammer profiled as %s (%s; confidence %.2f) across %d messages; observed tactics: %s",
		p.Type, p.Description, p.Confidence, turns, strings.Join(p.ObservedTactics, ", "))
	if p.SecondaryType != "" {
		note += fmt.Sprintf("; secondary pattern: %s", p.SecondaryType)
	}
	return note
}
