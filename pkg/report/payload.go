// Package report builds and delivers the final intelligence report for a
// completed engagement. Delivery is at-most-once per session with bounded
// retries and a durable local fallback.
package report

import (
	"github.com/decoylabs/scamtrap/pkg/intel"
)

// Intelligence is the extracted-entity section of the outbound payload.
// Field names are the wire contract of the reporting endpoint; do not
// rename.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Payload is the complete outbound report. All slice fields serialize as
// empty arrays rather than null when nothing was extracted.
type Payload struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// BuildPayload assembles the report from session facts and extracted
// intelligence.
func BuildPayload(sessionID string, detected bool, totalMessages int, entities *intel.EntitySet, keywords []string, notes string) Payload {
	p := Payload{
		SessionID:              sessionID,
		ScamDetected:           detected,
		TotalMessagesExchanged: totalMessages,
		ExtractedIntelligence: Intelligence{
			BankAccounts:       nonNil(entities.Values(intel.KindBankAccount)),
			UPIIDs:             nonNil(entities.Values(intel.KindUPI)),
			PhishingLinks:      nonNil(entities.Values(intel.KindURL)),
			PhoneNumbers:       nonNil(entities.Values(intel.KindPhone)),
			SuspiciousKeywords: nonNil(keywords),
		},
		AgentNotes: notes,
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
