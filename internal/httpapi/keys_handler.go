package httpapi

import (
	"net/http"

	"promptforge/internal/keypool"
	"promptforge/internal/prompt"
	"promptforge/internal/utils"
)

type validateRequest struct {
	APIKeys string `json:"api_keys"`
}

// credentialStatus reports a key by fingerprint only.
type credentialStatus struct {
	Credential string         `json:"credential"`
	Status     keypool.Status `json:"status"`
	Model      string         `json:"model,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type validateResponse struct {
	Source      keypool.Source     `json:"source"`
	Rejected    int                `json:"rejected_keys,omitempty"`
	Valid       int                `json:"valid"`
	Credentials []credentialStatus `json:"credentials"`
}

// handleValidate checks every resolved key with one minimal call.
func (d *Dependencies) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := utils.DecodeJSONBody(w, r, &req, maxBodyBytes); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	pool, source, rejected, err := d.resolvePool(req.APIKeys)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	creds := pool.Credentials()
	keys := make([]string, len(creds))
	for i := range creds {
		keys[i] = creds[i].Key
	}

	resp := validateResponse{
		Source:      source,
		Rejected:    rejected,
		Credentials: make([]credentialStatus, 0, len(keys)),
	}
	for _, c := range d.Runtime.Validate(r.Context(), keys) {
		if c.Status == keypool.StatusValid {
			resp.Valid++
		}
		resp.Credentials = append(resp.Credentials, credentialStatus{
			Credential: c.Fingerprint(),
			Status:     c.Status,
			Model:      c.Model,
			Error:      c.LastError,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleModes(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"default": prompt.DefaultModeID,
		"modes":   prompt.Modes(),
	})
}
