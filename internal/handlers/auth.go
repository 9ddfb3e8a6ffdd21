package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/utils"
)

// devSession mints a signer-session token. Session issuance belongs to the
// platform auth service; this endpoint exists only outside production so
// the signing flow can be exercised standalone.
func (r *Router) devSession(w http.ResponseWriter, req *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		ActorType string `json:"actorType"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.UserID == "" {
		respondError(w, apperr.New(apperr.CodeValidation, "userId is required"))
		return
	}
	if body.ActorType == "" {
		body.ActorType = models.ActorSigner
	}

	token, sessionID, err := utils.GenerateSessionToken(body.UserID, body.ActorType, r.cfg.JWTSecret, 12*time.Hour)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"token":     token,
		"sessionId": sessionID,
	})
}
