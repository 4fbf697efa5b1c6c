package rollout

// Phase is a state of the rollout saga
type Phase string

const (
	PhasePreparing     Phase = "PREPARING"
	PhaseClusterAuth   Phase = "CLUSTER_AUTH"
	PhaseNamespacePrep Phase = "NAMESPACE_PREP"
	PhaseDomainCheck   Phase = "DOMAIN_CHECK"
	PhaseApplying      Phase = "APPLYING"
	PhaseReadinessWait Phase = "READINESS_WAIT"
	PhaseLogCheck      Phase = "LOG_CHECK"
	PhaseFinalizing    Phase = "FINALIZING"
	PhaseActive        Phase = "ACTIVE"
	PhaseFailed        Phase = "FAILED"
)

// phaseOrder is the happy path
var phaseOrder = []Phase{
	PhasePreparing,
	PhaseClusterAuth,
	PhaseNamespacePrep,
	PhaseDomainCheck,
	PhaseApplying,
	PhaseReadinessWait,
	PhaseLogCheck,
	PhaseFinalizing,
	PhaseActive,
}

// Terminal reports whether no transition leaves p
func (p Phase) Terminal() bool {
	return p == PhaseActive || p == PhaseFailed
}

// CanTransition reports whether the saga may move from p to next. Any
// non-terminal phase may fail; otherwise only the next happy-path phase follows.
func (p Phase) CanTransition(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	for i, ph := range phaseOrder {
		if ph == p {
			return i+1 < len(phaseOrder) && phaseOrder[i+1] == next
		}
	}
	return false
}
