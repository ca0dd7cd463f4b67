package workflow

import "strings"

// Kind selects which transition map applies to a treatment. It is derived
// from the treatment's clinical indication.
type Kind int

const (
	// KindGeneric is the permissive fallback used when the indication is
	// not recognized.
	KindGeneric Kind = iota
	// KindThreeStage covers staged loading procedures (pancreas, prostate).
	KindThreeStage
	// KindTwoStage covers simplified direct-insertion procedures (skin).
	KindTwoStage
)

func (k Kind) String() string {
	switch k {
	case KindThreeStage:
		return "three-stage"
	case KindTwoStage:
		return "two-stage"
	default:
		return "generic"
	}
}

// KindFor maps a clinical indication to a workflow kind. Unknown indications
// fall back to KindGeneric; the raw indication string stays on the treatment
// record for audit purposes.
func KindFor(indication string) Kind {
	switch strings.ToLower(strings.TrimSpace(indication)) {
	case "pancreas", "prostate":
		return KindThreeStage
	case "skin":
		return KindTwoStage
	default:
		return KindGeneric
	}
}
