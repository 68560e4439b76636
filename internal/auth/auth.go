package auth

import (
	"errors"
	"net/http"

	"promptforge/internal/config"
	"promptforge/internal/utils"
)

type tokenRequest struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role,omitempty"`
}

// TokenHandler exchanges the configured access secret for a session JWT.
// The secret is read from the X-Access-Token header or the JSON body.
func TokenHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		req.AccessToken = r.Header.Get("X-Access-Token")
		if req.AccessToken == "" && r.ContentLength != 0 {
			if err := utils.DecodeJSONBody(w, r, &req, 1<<16); err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		if err := VerifyAccessToken(req.AccessToken, cfg); err != nil {
			switch {
			case errors.Is(err, ErrAccessDisabled):
				utils.RespondWithError(w, http.StatusForbidden, "Token exchange is disabled")
			case errors.Is(err, ErrInvalidAccessToken):
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid access token")
			default:
				utils.RespondWithError(w, http.StatusInternalServerError, "Error validating access token: "+err.Error())
			}
			return
		}

		role := RoleGenerator
		if req.Role != "" {
			role = Role(req.Role)
		}
		if !role.IsValid() {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown role: "+req.Role)
			return
		}

		token, exp, err := GenerateJWT(utils.Fingerprint(req.AccessToken), []Role{role}, cfg)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Error generating token: "+err.Error())
			return
		}

		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"exp":   exp,
		})
	}
}
