package gpu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain/ports/adapter"
)

var _ adapter.WorkerAdapter = (*HTTPAdapter)(nil)

// HTTPAdapter dispatches pipeline phases to the remote GPU worker.
// The worker answers a dispatch either with the phase result inline
// (200) or with an acceptance (202) followed by a POST to the callback URL.
type HTTPAdapter struct {
	baseURL     string
	callbackURL string
	client      *http.Client
	log         *zerolog.Logger
}

func NewHTTPAdapter(baseURL, callbackURL string, timeout time.Duration, logger *zerolog.Logger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "GPUAdapter").Logger()
	return &HTTPAdapter{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
		log:         &l,
	}
}

type phaseRequestBody struct {
	TaskID      string            `json:"task_id"`
	DocumentID  string            `json:"document_id"`
	FilePath    string            `json:"file_path"`
	CompanyID   string            `json:"company_id,omitempty"`
	Phase       string            `json:"phase"`
	CallbackURL string            `json:"callback_url"`
	Options     map[string]string `json:"options,omitempty"`
}

func (a *HTTPAdapter) RunPhase(ctx context.Context, req adapter.PhaseRequest) (*adapter.PhaseResult, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = a.callbackURL
	}
	body, err := json.Marshal(phaseRequestBody{
		TaskID:      req.TaskID,
		DocumentID:  req.DocumentID,
		FilePath:    req.FilePath,
		CompanyID:   req.CompanyID,
		Phase:       string(req.Phase),
		CallbackURL: callback,
		Options:     req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal phase request: %w", err)
	}

	url := fmt.Sprintf("%s/process/%s", a.baseURL, req.Phase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build phase request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", req.Phase, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		// Result arrives via the callback endpoint.
		a.log.Debug().Str("document_id", req.DocumentID).Str("phase", string(req.Phase)).
			Msg("phase accepted, awaiting callback")
		return nil, nil
	case http.StatusOK:
		var result adapter.PhaseResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", req.Phase, err)
		}
		if result.DocumentID == "" {
			result.DocumentID = req.DocumentID
		}
		if result.Phase == "" {
			result.Phase = req.Phase
		}
		return &result, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("worker returned %d for %s: %s", resp.StatusCode, req.Phase, snippet)
	}
}

func (a *HTTPAdapter) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker health returned %d", resp.StatusCode)
	}
	return nil
}
