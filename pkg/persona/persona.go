// Package persona generates the decoy's replies. Replies are cosmetic:
// they keep the counterpart talking but carry no detection or reporting
// semantics, so nothing here participates in scoring or state.
package persona

import (
	"math/rand"
	"sync"
)

// Strategy names the reply posture for the current stage of an engagement.
type Strategy string

const (
	// StrategyPassiveVerify plays mildly confused and asks for details.
	StrategyPassiveVerify Strategy = "passive_verify"
	// StrategyAnxiousComply acts worried and cooperative to draw out
	// payment channels.
	StrategyAnxiousComply Strategy = "anxious_comply"
	// StrategyStallAndProbe wastes time while fishing for identifiers.
	StrategyStallAndProbe Strategy = "stall_and_probe"
)

// Persona is a named phrase bank keyed by strategy.
type Persona struct {
	Name    string
	phrases map[Strategy][]string
}

var grandma = &Persona{
	Name: "grandma",
	phrases: map[Strategy][]string{
		StrategyPassiveVerify: {
			"Oh dear, I don't understand. Which bank did you say you were from?",
			"My grandson usually helps me with these things. Can you explain again?",
			"I'm sorry, what is this about? I didn't get any letter.",
			"Is this about my pension account? Which branch are you calling from?",
		},
		StrategyAnxiousComply: {
			"Oh no, that sounds serious! What do I need to do?",
			"Please don't block my account, I keep my savings there. Where do I send it?",
			"I'm so worried now. Can you give me the account details again slowly?",
			"Should I go to the bank? Or can you give me the number to pay?",
		},
		StrategyStallAndProbe: {
			"My internet is very slow today. Can you send that link once more?",
			"I wrote it down but my pen stopped working. What was the UPI id again?",
			"Hold on, my tea is boiling. Tell me your phone number and I'll call back.",
			"The page isn't opening. Is there another website I should try?",
		},
	},
}

var student = &Persona{
	Name: "student",
	phrases: map[Strategy][]string{
		StrategyPassiveVerify: {
			"Wait, who is this? How did you get my number?",
			"Hmm, my account seems fine in the app. What's the issue exactly?",
			"Which company are you from? I want to note it down.",
		},
		StrategyAnxiousComply: {
			"Oh man, I really can't afford a penalty right now. What do I do?",
			"Okay okay, I'll pay. Just send me the account number.",
			"Can I pay half now? Share the UPI and I'll try.",
		},
		StrategyStallAndProbe: {
			"I'm in class, message me the details and I'll do it after.",
			"My UPI is acting up. Do you have a bank account I can transfer to?",
			"The link says error 404. Can you resend it?",
		},
	},
}

var personas = map[string]*Persona{
	grandma.Name: grandma,
	student.Name: student,
}

// Generator selects strategies and phrases. Safe for concurrent use.
type Generator struct {
	persona *Persona

	mu  sync.Mutex
	rng *rand.Rand
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand sets the random source. Tests pass a seeded source for
// deterministic output.
func WithRand(rng *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.rng = rng }
}

// NewGenerator returns a generator for the named persona, falling back to
// grandma for unknown names.
func NewGenerator(name string, opts ...GeneratorOption) *Generator {
	p, ok := personas[name]
	if !ok {
		p = grandma
	}
	g := &Generator{
		persona: p,
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SelectStrategy maps the engagement stage onto a reply posture: verify
// while unsure, comply once the scam is clear, stall when payment channels
// are on the table.
func SelectStrategy(confidence float64, paymentAskSeen bool) Strategy {
	switch {
	case paymentAskSeen:
		return StrategyStallAndProbe
	case confidence >= 0.7:
		return StrategyAnxiousComply
	default:
		return StrategyPassiveVerify
	}
}

// Reply picks a phrase for the strategy.
func (g *Generator) Reply(strategy Strategy) string {
	bank := g.persona.phrases[strategy]
	if len(bank) == 0 {
		bank = g.persona.phrases[StrategyPassiveVerify]
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return bank[g.rng.Intn(len(bank))]
}

// Name returns the active persona's name.
func (g *Generator) Name() string { return g.persona.Name }
