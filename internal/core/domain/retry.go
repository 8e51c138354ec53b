package domain

// EscalationLevel is one step of the graduated retry ladder.
type EscalationLevel int

const (
	EscalationNone EscalationLevel = iota
	EscalationRelaxParams
	EscalationMultiQuery
	EscalationCrossDomain
	EscalationPartialAnswer
)

func (l EscalationLevel) String() string {
	switch l {
	case EscalationNone:
		return "none"
	case EscalationRelaxParams:
		return "relax_params"
	case EscalationMultiQuery:
		return "multi_query"
	case EscalationCrossDomain:
		return "cross_domain"
	case EscalationPartialAnswer:
		return "partial_answer"
	default:
		return "unknown"
	}
}

// RetryContext tracks which domains one retry sequence has already
// searched, so cross-domain escalation never revisits a collection. It is
// created when evaluation first fails and discarded once the sequence
// resolves.
type RetryContext struct {
	TriedDomains map[string]struct{}
}

func NewRetryContext() *RetryContext {
	return &RetryContext{TriedDomains: make(map[string]struct{})}
}

// MarkTried records a cross-domain attempt. It returns false when the domain
// was already tried in this sequence.
func (c *RetryContext) MarkTried(domainName string) bool {
	if _, ok := c.TriedDomains[domainName]; ok {
		return false
	}
	c.TriedDomains[domainName] = struct{}{}
	return true
}
