package model

// Phase is one of the four sequential AI-processing steps. Each phase is
// entered only after the previous one reported success; a retry always
// restarts from PhaseVisualAnalysis because intermediate artifacts are keyed
// by document, not by attempt.
type Phase string

const (
	PhaseVisualAnalysis      Phase = "visual_analysis"
	PhaseDataExtraction      Phase = "data_extraction"
	PhaseTemplateProcessing  Phase = "template_processing"
	PhaseSpecializedAnalysis Phase = "specialized_analysis"
)

// phaseOrder is the only legal execution order.
var phaseOrder = []Phase{
	PhaseVisualAnalysis,
	PhaseDataExtraction,
	PhaseTemplateProcessing,
	PhaseSpecializedAnalysis,
}

// progressCeiling is the task progress_percentage reported when a phase
// completes. The last phase must land on 100.
var progressCeiling = map[Phase]int{
	PhaseVisualAnalysis:      40,
	PhaseDataExtraction:      65,
	PhaseTemplateProcessing:  85,
	PhaseSpecializedAnalysis: 100,
}

// Phases returns the pipeline phases in execution order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

func (p Phase) Valid() bool {
	_, ok := progressCeiling[p]
	return ok
}

// Ceiling is the progress percentage recorded when this phase completes.
func (p Phase) Ceiling() int { return progressCeiling[p] }

// Floor is the progress percentage recorded when this phase starts, i.e. the
// previous phase's ceiling (0 for the first phase).
func (p Phase) Floor() int {
	for i, q := range phaseOrder {
		if q == p {
			if i == 0 {
				return 0
			}
			return phaseOrder[i-1].Ceiling()
		}
	}
	return 0
}
