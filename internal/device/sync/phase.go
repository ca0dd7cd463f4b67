package sync

// Phase is the engine's current position in the sync cycle. Download and push
// are mutually exclusive; local mutations never wait on the network.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDownloading
	PhaseReady
	PhaseMutating
	PhasePushing
	PhaseReconciling
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDownloading:
		return "downloading"
	case PhaseReady:
		return "ready"
	case PhaseMutating:
		return "mutating"
	case PhasePushing:
		return "pushing"
	case PhaseReconciling:
		return "reconciling"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}
