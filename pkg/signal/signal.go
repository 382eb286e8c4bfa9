// Package signal defines the scam-indicator vocabulary and the rule catalog
// that maps raw message text to weighted signals.
//
// Signals are the universal currency of the engine: the catalog produces
// them, the scorer aggregates them, and the completion evaluator counts
// them. They are immutable once produced.
package signal

// Category groups signals into broad attack vectors. The scorer uses
// category diversity across a conversation as an escalation input.
type Category string

const (
	CategoryUrgency         Category = "urgency_pressure"
	CategoryAuthorityThreat Category = "account_authority"
	CategoryPayment         Category = "payment"
	CategoryPhishing        Category = "phishing"
	CategoryConversation    Category = "conversation"
)

// Type identifies a specific scam indicator. Values are the machine-readable
// ids surfaced in per-turn verdicts and reports.
type Type string

const (
	// Urgency / pressure
	TypeUrgency         Type = "urgency"
	TypeTimePressure    Type = "time_pressure"
	TypeDeadline        Type = "deadline"
	TypeImmediateAction Type = "immediate_action"

	// Account / authority threats
	TypeAccountThreat     Type = "account_threat"
	TypeAccountSuspension Type = "account_suspension"
	TypeKYCFailure        Type = "kyc_failure"
	TypeAuthorityImperson Type = "authority_impersonation"
	TypeBankImpersonation Type = "bank_impersonation"
	TypeGovtImpersonation Type = "government_impersonation"

	// Payment / credential requests
	TypePaymentRequest       Type = "payment_request"
	TypeUPIRequest           Type = "upi_request"
	TypeOTPRequest           Type = "otp_request"
	TypeAccountNumberRequest Type = "account_number_request"
	TypeCardDetailsRequest   Type = "card_details_request"
	TypePINRequest           Type = "pin_request"

	// Phishing / redirection
	TypeSuspiciousLink   Type = "suspicious_link"
	TypeShortenedURL     Type = "shortened_url"
	TypeLoginRequest     Type = "login_request"
	TypeVerifyLink       Type = "verify_link"
	TypeMisspelledDomain Type = "misspelled_domain"

	// Conversation patterns (require history)
	TypeRepetition       Type = "repetition"
	TypeEscalation       Type = "escalation"
	TypeIgnoredQuestions Type = "ignoring_questions"
	TypeCopyPaste        Type = "copy_paste"
)

// Signal is a single weighted scam indicator extracted from one message.
// Produced fresh per message, never mutated.
type Signal struct {
	ID       Type     `json:"id"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
}

// typeCategories is the closed mapping from signal type to category.
var typeCategories = map[Type]Category{
	TypeUrgency:         CategoryUrgency,
	TypeTimePressure:    CategoryUrgency,
	TypeDeadline:        CategoryUrgency,
	TypeImmediateAction: CategoryUrgency,

	TypeAccountThreat:     CategoryAuthorityThreat,
	TypeAccountSuspension: CategoryAuthorityThreat,
	TypeKYCFailure:        CategoryAuthorityThreat,
	TypeAuthorityImperson: CategoryAuthorityThreat,
	TypeBankImpersonation: CategoryAuthorityThreat,
	TypeGovtImpersonation: CategoryAuthorityThreat,

	TypePaymentRequest:       CategoryPayment,
	TypeUPIRequest:           CategoryPayment,
	TypeOTPRequest:           CategoryPayment,
	TypeAccountNumberRequest: CategoryPayment,
	TypeCardDetailsRequest:   CategoryPayment,
	TypePINRequest:           CategoryPayment,

	TypeSuspiciousLink:   CategoryPhishing,
	TypeShortenedURL:     CategoryPhishing,
	TypeLoginRequest:     CategoryPhishing,
	TypeVerifyLink:       CategoryPhishing,
	TypeMisspelledDomain: CategoryPhishing,

	TypeRepetition:       CategoryConversation,
	TypeEscalation:       CategoryConversation,
	TypeIgnoredQuestions: CategoryConversation,
	TypeCopyPaste:        CategoryConversation,
}

// CategoryOf returns the category for a signal type. Unknown types map to
// the conversation category with the lowest default weight rather than
// failing; the scorer treats them as weight-0 if the table has no entry.
func CategoryOf(t Type) Category {
	if c, ok := typeCategories[t]; ok {
		return c
	}
	return CategoryConversation
}

// criticalTypes are credential-harvesting requests. Their presence raises
// the first-message cap and triggers the severity multiplier.
var criticalTypes = map[Type]bool{
	TypeOTPRequest:         true,
	TypePINRequest:         true,
	TypeCardDetailsRequest: true,
}

// paymentIdentifierTypes request payment routing details. Treated as
// high-severity but below the credential tier.
var paymentIdentifierTypes = map[Type]bool{
	TypeUPIRequest:           true,
	TypeAccountNumberRequest: true,
}

// IsCritical reports whether t is a credential-request signal (OTP, PIN,
// card details).
func (s Signal) IsCritical() bool { return criticalTypes[s.ID] }

// IsPaymentIdentifier reports whether t requests payment routing details
// (UPI id, account number).
func (s Signal) IsPaymentIdentifier() bool { return paymentIdentifierTypes[s.ID] }

// IsCredentialRequest covers both the critical and payment-identifier
// tiers; the completion evaluator counts turns containing these.
func (s Signal) IsCredentialRequest() bool {
	return criticalTypes[s.ID] || paymentIdentifierTypes[s.ID]
}

// WeightTable is an immutable mapping from signal type to base weight.
// Built once at startup (defaults, optionally overridden from config) and
// passed into the scorer at construction. Callers must not mutate it after
// construction; Clone exists for tests that need variants.
type WeightTable map[Type]float64

// DefaultWeights returns the stock weight table. Weights are tuned so that
// a lone authority-threat message scores in the ambiguous band while
// credential requests clear the detection threshold on their own.
func DefaultWeights() WeightTable {
	return WeightTable{
		// Critical credential requests
		TypeOTPRequest:         0.55,
		TypePINRequest:         0.55,
		TypeCardDetailsRequest: 0.50,

		// Payment identifiers
		TypeAccountNumberRequest: 0.45,
		TypeUPIRequest:           0.45,

		// Account / authority threats
		TypeAccountThreat:     0.45,
		TypeAccountSuspension: 0.40,
		TypeKYCFailure:        0.30,
		TypeAuthorityImperson: 0.30,
		TypeBankImpersonation: 0.30,
		TypeGovtImpersonation: 0.30,

		// Phishing
		TypeSuspiciousLink:   0.35,
		TypeShortenedURL:     0.35,
		TypeVerifyLink:       0.30,
		TypeMisspelledDomain: 0.30,
		TypeLoginRequest:     0.25,

		// Urgency / pressure
		TypeUrgency:         0.25,
		TypeTimePressure:    0.25,
		TypeDeadline:        0.25,
		TypeImmediateAction: 0.25,

		// Payment ask without identifiers
		TypePaymentRequest: 0.30,

		// Conversation patterns
		TypeRepetition:       0.15,
		TypeEscalation:       0.20,
		TypeIgnoredQuestions: 0.15,
		TypeCopyPaste:        0.15,
	}
}

// Weight returns the base weight for t, or 0 for unknown types. Unknown
// catalog output is ignored, never fatal.
func (w WeightTable) Weight(t Type) float64 { return w[t] }

// Clone returns a copy of the table. Used when applying config overrides so
// the defaults stay untouched.
func (w WeightTable) Clone() WeightTable {
	out := make(WeightTable, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// New builds a Signal for t using the table's weight.
func (w WeightTable) New(t Type) Signal {
	return Signal{ID: t, Category: CategoryOf(t), Weight: w.Weight(t)}
}

// Set is an ordered collection of unique signals for one turn. Order is the
// catalog's rule order, which keeps verdict output deterministic.
type Set []Signal

// Contains reports whether the set holds a signal of type t.
func (s Set) Contains(t Type) bool {
	for _, sig := range s {
		if sig.ID == t {
			return true
		}
	}
	return false
}

// Categories returns the distinct categories present in the set.
func (s Set) Categories() map[Category]bool {
	out := make(map[Category]bool, len(s))
	for _, sig := range s {
		out[sig.Category] = true
	}
	return out
}

// IDs returns the signal ids in set order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for _, sig := range s {
		out = append(out, string(sig.ID))
	}
	return out
}

// HasCritical reports whether any credential-request signal is present.
func (s Set) HasCritical() bool {
	for _, sig := range s {
		if sig.IsCritical() {
			return true
		}
	}
	return false
}

// HasCategory reports whether any signal in the set belongs to c.
func (s Set) HasCategory(c Category) bool {
	for _, sig := range s {
		if sig.Category == c {
			return true
		}
	}
	return false
}
