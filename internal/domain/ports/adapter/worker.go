package adapter

import (
	"context"
	"encoding/json"

	"deckreview-pipeline/internal/domain/model"
)

// PhaseRequest is one phase dispatched to the remote GPU worker.
type PhaseRequest struct {
	TaskID      string
	DocumentID  string
	FilePath    string
	CompanyID   string
	Phase       model.Phase
	CallbackURL string
	// Options carries phase-specific knobs (template id, analysis toggles).
	Options map[string]string
}

// PhaseResult is what the worker reports for a phase, either inline in the
// dispatch response or later through the callback endpoint.
type PhaseResult struct {
	DocumentID string          `json:"document_id"`
	Phase      model.Phase     `json:"phase"`
	Success    bool            `json:"success"`
	Payload    json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// WorkerAdapter talks to the remote processing backend over HTTP.
type WorkerAdapter interface {
	// RunPhase sends one phase to the worker. A nil result with a nil error
	// means the worker accepted the phase and will deliver the result through
	// the callback endpoint; the dispatcher must wait for it.
	RunPhase(ctx context.Context, req PhaseRequest) (*PhaseResult, error)

	// Ping probes worker liveness.
	Ping(ctx context.Context) error
}
