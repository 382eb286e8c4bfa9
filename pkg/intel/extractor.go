// Package intel extracts actionable intelligence from an engagement: the
// payment identifiers, links, and phone numbers a scammer reveals, and the
// decision of when a session has yielded enough to report.
package intel

import (
	"regexp"
	"sort"
	"strings"
)

// Entity kinds surfaced in the final report.
const (
	KindUPI         = "upi"
	KindBankAccount = "bank_account"
	KindIFSC        = "ifsc"
	KindPhone       = "phone"
	KindURL         = "url"
)

// highValueKinds are entity kinds whose repetition signals the scammer is
// committed to a concrete cash-out channel.
var highValueKinds = map[string]bool{
	KindUPI:         true,
	KindBankAccount: true,
	KindURL:         true,
}

var (
	upiPattern  = regexp.MustCompile(`\b[a-zA-Z0-9._-]+@(?:ybl|oksbi|okhdfcbank|okicici|okaxis|paytm|upi|apl|ibl|axl|freecharge)\b`)
	bankPattern = regexp.MustCompile(`\b\d{9,18}\b`)
	ifscPattern = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)
	// Indian mobile numbers, optionally prefixed with +91 or 0.
	phonePattern = regexp.MustCompile(`(?:\+91[\s-]?|0)?[6-9]\d{9}\b`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)
)

// suspiciousKeywords are collected verbatim for the report's keyword list.
var suspiciousKeywords = []string{
	"otp", "pin", "cvv", "kyc", "verify", "urgent", "blocked", "suspended",
	"refund", "lottery", "prize", "winner", "customs", "parcel", "arrest",
	"penalty", "processing fee", "gift card",
}

// EntitySet accumulates extracted entities with per-value occurrence counts.
// Counts track distinct sightings across turns; repeating a UPI id twice in
// one message still counts once for that turn.
type EntitySet struct {
	counts map[string]map[string]int // kind -> value -> occurrences
}

// NewEntitySet returns an empty set.
func NewEntitySet() *EntitySet {
	return &EntitySet{counts: make(map[string]map[string]int)}
}

func (e *EntitySet) record(kind, value string) {
	if e.counts[kind] == nil {
		e.counts[kind] = make(map[string]int)
	}
	e.counts[kind][value]++
}

// Values returns the distinct values of a kind, sorted for deterministic
// report output.
func (e *EntitySet) Values(kind string) []string {
	out := make([]string, 0, len(e.counts[kind]))
	for v := range e.counts[kind] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Count returns how many turns mentioned the given value.
func (e *EntitySet) Count(kind, value string) int {
	return e.counts[kind][value]
}

// MaxHighValueCount returns the highest occurrence count among high-value
// entities (UPI ids, bank accounts, URLs).
func (e *EntitySet) MaxHighValueCount() int {
	max := 0
	for kind := range highValueKinds {
		for _, n := range e.counts[kind] {
			if n > max {
				max = n
			}
		}
	}
	return max
}

// Total returns the number of distinct entities across all kinds.
func (e *EntitySet) Total() int {
	total := 0
	for _, values := range e.counts {
		total += len(values)
	}
	return total
}

// Extractor pulls entities and suspicious keywords from message text.
// Immutable after construction and safe for concurrent use.
type Extractor struct {
	keywords []string
}

// NewExtractor returns an Extractor watching the stock suspicious keywords
// plus any operator-supplied extras.
func NewExtractor(extra ...string) *Extractor {
	kws := append([]string(nil), suspiciousKeywords...)
	for _, kw := range extra {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	return &Extractor{keywords: kws}
}

// ExtractInto scans one message and records findings in the set. Each
// distinct value is counted once per call regardless of in-message repeats.
func (x *Extractor) ExtractInto(set *EntitySet, text string) {
	seen := make(map[string]bool)
	add := func(kind, value string) {
		key := kind + "\x00" + value
		if seen[key] {
			return
		}
		seen[key] = true
		set.record(kind, value)
	}

	for _, m := range upiPattern.FindAllString(text, -1) {
		add(KindUPI, strings.ToLower(m))
	}
	// UPI handles contain digit runs; mask them out before account matching
	// so "pay 9876543210@ybl" is not also a bank account.
	masked := upiPattern.ReplaceAllString(text, " ")
	phoneMatches := phonePattern.FindAllString(masked, -1)
	for _, m := range phoneMatches {
		add(KindPhone, normalizePhone(m))
	}
	masked = phonePattern.ReplaceAllString(masked, " ")
	for _, m := range bankPattern.FindAllString(masked, -1) {
		add(KindBankAccount, m)
	}
	for _, m := range ifscPattern.FindAllString(text, -1) {
		add(KindIFSC, m)
	}
	for _, m := range urlPattern.FindAllString(text, -1) {
		add(KindURL, strings.TrimRight(m, ".,;)"))
	}
}

// Keywords returns the suspicious keywords present in the text.
func (x *Extractor) Keywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range x.keywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func normalizePhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	return digits
}
