package signal

import (
	"regexp"
	"strings"
)

// Rule binds match patterns to the signal they produce. Keywords match as
// substrings of the normalized text; Patterns are compiled regexes run
// against the raw text (case-insensitive). A rule fires at most once per
// message.
type Rule struct {
	Signal      Type
	Keywords    []string
	Patterns    []*regexp.Regexp
	Description string
}

func (r *Rule) matches(raw, normalized string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	for _, p := range r.Patterns {
		if p.MatchString(raw) {
			return true
		}
	}
	return false
}

// Catalog is the compiled rule set. All regexes compile once at
// construction and the catalog is safe for concurrent use; extraction is a
// pure function of its input text.
type Catalog struct {
	rules   []*Rule
	weights WeightTable
}

// NewCatalog builds the stock catalog with the given weight table.
func NewCatalog(weights WeightTable) *Catalog {
	c := &Catalog{weights: weights}
	c.registerUrgencyRules()
	c.registerAuthorityRules()
	c.registerPaymentRules()
	c.registerPhishingRules()
	return c
}

func (c *Catalog) register(sig Type, desc string, keywords []string, patterns ...string) {
	r := &Rule{Signal: sig, Keywords: keywords, Description: desc}
	for _, p := range patterns {
		r.Patterns = append(r.Patterns, regexp.MustCompile(p))
	}
	c.rules = append(c.rules, r)
}

func (c *Catalog) registerUrgencyRules() {
	c.register(TypeUrgency, "General urgency keywords",
		[]string{
			"urgent", "urgently", "immediate", "immediately", "asap", "right now",
			"hurry", "quickly", "jaldi", "turant",
		})
	c.register(TypeTimePressure, "Time-based pressure",
		[]string{"expire", "expiring", "expiry", "limited time", "last chance"},
		`(?i)\b(within|in)\s+\d+\s+(hour|hours|minute|minutes|min|mins|hr|hrs)\b`,
		`(?i)\b(by|before)\s+(today|tonight|tomorrow|end of day)\b`)
	c.register(TypeDeadline, "Deadline-based threats",
		[]string{
			"deadline", "time limit", "countdown", "last day", "final notice",
			"before midnight", "must complete by",
		})
	c.register(TypeImmediateAction, "Demands for immediate action",
		[]string{
			"act now", "take action", "respond now", "reply immediately",
			"do it now", "submit now", "verify now", "update now", "confirm now",
		})
}

func (c *Catalog) registerAuthorityRules() {
	c.register(TypeAccountThreat, "Account threat keywords",
		[]string{
			"account blocked", "account suspended", "account locked", "account closed",
			"account deactivated", "account will be", "will block", "will suspend",
			"avoid suspension", "avoid blocking", "avoid closure", "prevent suspension",
			"account suspension", "permanently closed", "block ho jayega",
		})
	c.register(TypeAccountSuspension, "Account suspension patterns", nil,
		`(?i)(account|card|service).{0,20}(suspension|suspend|deactivat|disable)`,
		`(?i)(avoid|prevent|stop).{0,15}(suspension|closure|deactivation)`)
	c.register(TypeKYCFailure, "KYC-related threats",
		[]string{
			"kyc", "know your customer", "customer verification failed",
		})
	c.register(TypeBankImpersonation, "Bank impersonation", nil,
		`(?i)\b(state bank|sbi|hdfc|icici|axis bank|pnb|canara bank|union bank)\b`,
		`(?i)\b(your|our) bank\b`,
		`(?i)\bbanking (system|service|team)\b`,
		`(?i)\b(reserve bank|rbi|central bank)\b`)
	c.register(TypeGovtImpersonation, "Government authority impersonation",
		[]string{
			"income tax", "tax department", "tax notice", "ministry",
			"cybercrime", "enforcement directorate", "uidai", "aadhaar",
			"pan card", "passport office",
		})
	c.register(TypeAuthorityImperson, "General authority impersonation",
		[]string{
			"official notice", "authorized agent", "verified sender",
			"customer care", "customer support", "technical support", "helpdesk",
		},
		`(?i)\b(from|this is)\s+(the\s+)?(bank|government|police|tax)\b`)
}

func (c *Catalog) registerPaymentRules() {
	c.register(TypeUPIRequest, "UPI and payment ID requests",
		[]string{
			"upi", "google pay", "gpay", "phonepe", "paytm", "bhim",
			"virtual payment", "pay via upi",
		},
		`(?i)\b[a-z0-9._-]+@(ybl|oksbi|okhdfcbank|okicici|okaxis|paytm|upi|apl|ibl)\b`)
	c.register(TypeOTPRequest, "OTP and verification code requests",
		[]string{
			"one time password", "one-time password", "verification code",
			"security code", "authentication code", "sms code",
		},
		`(?i)\botp\b`)
	c.register(TypeAccountNumberRequest, "Bank account number requests",
		[]string{
			"account number", "account no", "acct no", "a/c number", "ifsc",
			"routing number", "sort code", "provide account", "share account",
		},
		`(?i)\baccount\s*#`)
	c.register(TypeCardDetailsRequest, "Card details requests",
		[]string{
			"card number", "debit card", "credit card", "card details", "cvv", "cvc",
			"card expiry", "card pin", "16 digit", "card info",
		},
		`\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}`)
	c.register(TypePINRequest, "PIN requests",
		[]string{"atm pin", "security pin", "enter pin", "share pin", "provide pin", "send pin"},
		`(?i)\bpin\b`)
	c.register(TypePaymentRequest, "General payment requests",
		[]string{
			"send money", "transfer money", "make payment", "pay now",
			"payment required", "wire transfer", "send funds", "transfer funds",
			"processing fee", "registration fee", "paisa bhejo",
		},
		`(?i)pay\s+(rs|inr|₹)\.?\s*\d+`)
}

func (c *Catalog) registerPhishingRules() {
	c.register(TypeSuspiciousLink, "URLs and link requests",
		[]string{"click here", "click link", "visit link", "open link", "tap link"},
		`https?://\S+`,
		`(?i)\bwww\.[a-z0-9-]+\.[a-z]{2,}`)
	c.register(TypeShortenedURL, "Shortened URL patterns", nil,
		`(?i)\b(bit\.ly|goo\.gl|tinyurl\.com|short\.link|t\.co|ow\.ly|is\.gd|buff\.ly|cutt\.ly)/\S+`)
	c.register(TypeLoginRequest, "Login credential requests",
		[]string{
			"log in", "login", "sign in", "signin", "enter credentials",
			"username and password", "login details",
		})
	c.register(TypeVerifyLink, "Verification link patterns",
		[]string{
			"verify your", "verify account", "verify identity", "verification link",
			"confirm your", "validate your", "authenticate your",
		})
	c.register(TypeMisspelledDomain, "Common domain misspellings", nil,
		`(?i)\b(gooogle|yaahoo|amazzon|paypai|microosft|bankofindia-\w+)\b`,
		`(?i)\b[a-z0-9]+-(secure|verify|update)\.(com|net|org|in)\b`)
}

// Extract returns the signals present in a single message, with a
// human-readable explanation per signal id. Deterministic: signals appear
// in rule registration order.
func (c *Catalog) Extract(text string) (Set, map[string]string) {
	normalized := Normalize(DeLeet(text))
	var out Set
	explanations := make(map[string]string)
	for _, r := range c.rules {
		if !r.matches(text, normalized) {
			continue
		}
		if out.Contains(r.Signal) {
			continue
		}
		out = append(out, c.weights.New(r.Signal))
		explanations[string(r.Signal)] = r.Description
	}
	return out, explanations
}

// ConvTurn is the minimal view of a prior conversation turn needed for
// cross-turn pattern detection.
type ConvTurn struct {
	Sender string // "counterpart" or "responder"
	Text   string
}

// SenderCounterpart and SenderResponder name the two conversation parties.
const (
	SenderCounterpart = "counterpart"
	SenderResponder   = "responder"
)

var threatKeywords = []string{
	"block", "suspend", "close", "deactivate", "legal", "action",
	"police", "arrest", "fine", "penalty", "last chance", "final",
}

var questionWords = []string{"?", "why", "what", "how", "who", "when", "which"}
var demandWords = []string{"send", "provide", "share", "give", "submit", "enter"}

// ConversationSignals inspects the conversation so far plus the current
// message and returns the cross-turn pattern signals (repetition,
// escalation, copy-paste, ignored questions). These are the only signals
// that depend on history.
func (c *Catalog) ConversationSignals(history []ConvTurn, current string) (Set, map[string]string) {
	if len(history) == 0 {
		return nil, nil
	}

	counterpart := make([]string, 0, len(history)+1)
	for _, t := range history {
		if t.Sender == SenderCounterpart {
			counterpart = append(counterpart, t.Text)
		}
	}
	counterpart = append(counterpart, current)

	var out Set
	explanations := make(map[string]string)
	add := func(t Type, why string) {
		if !out.Contains(t) {
			out = append(out, c.weights.New(t))
			explanations[string(t)] = why
		}
	}

	if detectRepetition(counterpart) {
		add(TypeRepetition, "Counterpart is repeating similar messages")
	}
	if detectEscalation(counterpart) {
		add(TypeEscalation, "Threat level escalating across conversation")
	}
	if detectCopyPaste(counterpart) {
		add(TypeCopyPaste, "Exact message repetition detected")
	}
	if detectIgnoredQuestions(history) {
		add(TypeIgnoredQuestions, "Counterpart ignores questions and repeats demands")
	}
	return out, explanations
}

// detectRepetition flags near-duplicate consecutive messages among the last
// three counterpart messages.
func detectRepetition(messages []string) bool {
	if len(messages) < 2 {
		return false
	}
	recent := messages
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for i := 0; i < len(recent)-1; i++ {
		if jaccardSimilarity(recent[i], recent[i+1]) > 0.8 {
			return true
		}
	}
	return false
}

// detectEscalation flags a rising threat-keyword count between the last two
// counterpart messages.
func detectEscalation(messages []string) bool {
	if len(messages) < 2 {
		return false
	}
	count := func(msg string) int {
		lower := strings.ToLower(msg)
		n := 0
		for _, kw := range threatKeywords {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		return n
	}
	return count(messages[len(messages)-1]) > count(messages[len(messages)-2])
}

// detectCopyPaste flags an exact (case-folded) duplicate anywhere in the
// counterpart's messages.
func detectCopyPaste(messages []string) bool {
	seen := make(map[string]bool, len(messages))
	for _, msg := range messages {
		key := strings.ToLower(strings.TrimSpace(msg))
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// detectIgnoredQuestions looks for responder questions followed by
// counterpart demands that share no vocabulary with the question.
func detectIgnoredQuestions(history []ConvTurn) bool {
	if len(history) < 3 {
		return false
	}
	for i := 0; i < len(history)-1; i++ {
		if history[i].Sender != SenderResponder {
			continue
		}
		question := strings.ToLower(history[i].Text)
		if !containsAny(question, questionWords) {
			continue
		}
		next := strings.ToLower(history[i+1].Text)
		if !containsAny(next, demandWords) {
			continue
		}
		ignored := true
		for _, word := range strings.Fields(question) {
			if len(word) > 3 && strings.Contains(next, word) {
				ignored = false
				break
			}
		}
		if ignored {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// jaccardSimilarity computes word-set overlap between two messages.
func jaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		out[w] = true
	}
	return out
}
