package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"promptforge/internal/dispatch"
	"promptforge/internal/export"
	"promptforge/internal/keypool"
	"promptforge/internal/prompt"
	"promptforge/internal/utils"
)

type generateRequest struct {
	APIKeys  string `json:"api_keys"`
	Topic    string `json:"topic"`
	Mode     string `json:"mode"`
	Trend    string `json:"trend"`
	Quantity int    `json:"quantity"`
	Format   string `json:"format,omitempty"` // empty = JSON response, txt or html = file download
}

type generateResponse struct {
	RunID     string            `json:"run_id"`
	Source    keypool.Source    `json:"source"`
	Rejected  int               `json:"rejected_keys,omitempty"`
	Results   []dispatch.Result `json:"results"`
	Attempts  int               `json:"attempts"`
	Remaining int               `json:"credentials_remaining"`
	Error     string            `json:"error,omitempty"`
}

// handleGenerate runs one batch.
//
// Flow:
//  1. Decode and validate the request (topic, quantity, mode)
//  2. Resolve credentials: secrets source first, then pasted keys
//  3. Run a dispatch Session over the pool
//  4. Respond with results, or partial results and the error on exhaustion
func (d *Dependencies) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := utils.DecodeJSONBody(w, r, &req, maxBodyBytes); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Format {
	case "", export.FormatText, export.FormatHTML:
	default:
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format: %s", req.Format))
		return
	}

	items, err := prompt.Build(prompt.Request{
		Topic:    req.Topic,
		ModeID:   req.Mode,
		Trend:    req.Trend,
		Quantity: req.Quantity,
	}, d.Config.Dispatch.MaxQuantity)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	pool, source, rejected, err := d.resolvePool(req.APIKeys)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, results, runErr := d.Runtime.Run(r.Context(), pool, items)
	if session == nil {
		utils.RespondWithError(w, http.StatusInternalServerError, runErr.Error())
		return
	}
	resp := generateResponse{
		RunID:     session.RunID(),
		Source:    source,
		Rejected:  rejected,
		Results:   results,
		Attempts:  session.Attempts(),
		Remaining: session.Pool().Len(),
	}

	if runErr != nil {
		resp.Error = runErr.Error()
		switch {
		case errors.Is(runErr, dispatch.ErrExhausted):
			d.logger.Warn("batch exhausted", "run", resp.RunID, "completed", len(results), "of", len(items))
			utils.RespondWithJSON(w, http.StatusBadGateway, resp)
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			d.logger.Info("batch cancelled by client", "run", resp.RunID, "completed", len(results))
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, resp)
		default:
			d.logger.Error("batch failed", "run", resp.RunID, "error", runErr)
			utils.RespondWithJSON(w, http.StatusInternalServerError, resp)
		}
		return
	}

	if req.Format != "" {
		artifact, err := export.Render(req.Format, items[0].Topic, results)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", artifact.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
		w.Header().Set("X-Run-Id", resp.RunID)
		w.WriteHeader(http.StatusOK)
		w.Write(artifact.Data)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// resolvePool builds the credential pool for one request. Keys from the
// secrets source win over pasted keys.
func (d *Dependencies) resolvePool(pasted string) (*keypool.Pool, keypool.Source, int, error) {
	shape := d.Runtime.Shape
	if keys := keypool.CleanKeys(d.Config.Provider.SecretKeys, shape); len(keys) > 0 {
		pool, err := keypool.NewPool(keys)
		return pool, keypool.SourceSecrets, 0, err
	}

	pool, parsed, err := keypool.NewPoolFromText(pasted, shape)
	if err != nil {
		return nil, keypool.SourceNone, parsed.Rejected, err
	}
	return pool, keypool.SourceManual, parsed.Rejected, nil
}
