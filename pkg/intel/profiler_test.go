package intel

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestProfilePaymentRedirector(t *testing.T) {
	p := ProfileConversation([]Observation{
		{
			SignalIDs: []string{"upi_request", "payment_request"},
			Text:      "Pay 500 rupees to my upi scammer@ybl, send now",
		},
	})

	if p.Type != "Payment Redirector" {
		t.Errorf("type = %q, want Payment Redirector", p.Type)
	}
	if p.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 when only one archetype scores", p.Confidence)
	}
	if p.SecondaryType != "" {
		t.Errorf("secondary = %q, want none", p.SecondaryType)
	}
	if !reflect.DeepEqual(p.ObservedTactics, []string{"upi_request", "payment_request"}) {
		t.Errorf("tactics = %v", p.ObservedTactics)
	}
}

func TestProfileTieResolvesDeterministically(t *testing.T) {
	obs := []Observation{
		{
			SignalIDs: []string{"otp_request", "account_suspension"},
			Text:      "Share your OTP to avoid account suspension",
		},
	}

	first := ProfileConversation(obs)
	// Both archetypes score 1.5 from one secondary signal each; the earlier
	// table entry wins and the other surfaces as the secondary type.
	if first.Type != "Urgency Enforcer" {
		t.Errorf("type = %q, want Urgency Enforcer", first.Type)
	}
	if first.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", first.Confidence)
	}
	if first.SecondaryType != "Payment Redirector" {
		t.Errorf("secondary = %q, want Payment Redirector", first.SecondaryType)
	}

	for i := 0; i < 5; i++ {
		if got := ProfileConversation(obs); got.Type != first.Type || got.SecondaryType != first.SecondaryType {
			t.Fatalf("run %d profiled %q/%q, first run %q/%q",
				i, got.Type, got.SecondaryType, first.Type, first.SecondaryType)
		}
	}
}

func TestProfileAccumulatesAcrossTurns(t *testing.T) {
	p := ProfileConversation([]Observation{
		{SignalIDs: []string{"urgency"}, Text: "urgent, act now"},
		{SignalIDs: []string{"urgency", "deadline"}, Text: "last warning, 10 minutes left"},
		{SignalIDs: []string{"upi_request"}, Text: "send to scam@ybl"},
	})

	if p.Type != "Urgency Enforcer" {
		t.Errorf("type = %q, want Urgency Enforcer", p.Type)
	}
	if p.SecondaryType != "Payment Redirector" {
		t.Errorf("secondary = %q, want Payment Redirector", p.SecondaryType)
	}
	want := []string{"urgency", "deadline", "upi_request"}
	if !reflect.DeepEqual(p.ObservedTactics, want) {
		t.Errorf("tactics = %v, want %v (unique, first-seen order)", p.ObservedTactics, want)
	}
}

func TestProfileTacticsCapped(t *testing.T) {
	var obs []Observation
	for i := 0; i < 12; i++ {
		obs = append(obs, Observation{
			SignalIDs: []string{fmt.Sprintf("tactic_%02d", i)},
			Text:      "urgent",
		})
	}

	p := ProfileConversation(obs)
	if len(p.ObservedTactics) != maxObservedTactics {
		t.Fatalf("tactics length = %d, want %d", len(p.ObservedTactics), maxObservedTactics)
	}
	if p.ObservedTactics[0] != "tactic_00" || p.ObservedTactics[9] != "tactic_09" {
		t.Errorf("cap did not keep first-seen tactics: %v", p.ObservedTactics)
	}
}

func TestProfileNoObservations(t *testing.T) {
	p := ProfileConversation(nil)
	if p.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", p.Confidence)
	}
	if len(p.ObservedTactics) != 0 {
		t.Errorf("tactics = %v, want none", p.ObservedTactics)
	}
	if got := p.Notes(3); got != "No scam tactics identified across 3 messages" {
		t.Errorf("Notes = %q", got)
	}
}

func TestProfileNotes(t *testing.T) {
	p := ProfileConversation([]Observation{
		{SignalIDs: []string{"upi_request"}, Text: "send to scam@ybl via upi"},
	})

	notes := p.Notes(5)
	for _, want := range []string{"Payment Redirector", "across 5 messages", "upi_request"} {
		if !strings.Contains(notes, want) {
			t.Errorf("Notes = %q, missing %q", notes, want)
		}
	}
}
