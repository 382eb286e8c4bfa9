package intel

// CompletionPolicy decides when an engagement has yielded enough
// intelligence to finalize and report. Thresholds come from configuration;
// zero values are not valid, construct via NewCompletionPolicy.
type CompletionPolicy struct {
	minTurns        int
	entityRepeat    int
	credentialTurns int
}

// NewCompletionPolicy builds a policy from the configured thresholds.
func NewCompletionPolicy(minTurns, entityRepeat, credentialTurns int) *CompletionPolicy {
	return &CompletionPolicy{
		minTurns:        minTurns,
		entityRepeat:    entityRepeat,
		credentialTurns: credentialTurns,
	}
}

// Complete reports whether the session has crossed any completion
// criterion: enough turns elapsed, a high-value entity repeated enough
// times, or credential requests spread across enough distinct turns.
func (p *CompletionPolicy) Complete(turns int, entities *EntitySet, credentialTurns int) bool {
	if turns >= p.minTurns {
		return true
	}
	if entities != nil && entities.MaxHighValueCount() >= p.entityRepeat {
		return true
	}
	if credentialTurns >= p.credentialTurns {
		return true
	}
	return false
}
