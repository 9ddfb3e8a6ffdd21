package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/buildinfo"
	"github.com/lexsign-io/lexsigngo/internal/config"
	"github.com/lexsign-io/lexsigngo/internal/database"
	"github.com/lexsign-io/lexsigngo/internal/detect"
	"github.com/lexsign-io/lexsigngo/internal/evidence"
	"github.com/lexsign-io/lexsigngo/internal/middleware"
	"github.com/lexsign-io/lexsigngo/internal/notify"
	"github.com/lexsign-io/lexsigngo/internal/workflow"
)

// Router wraps the mux router and the signing services
type Router struct {
	*mux.Router
	cfg       *config.Config
	db        *database.DB
	svc       *workflow.Service
	detector  *detect.Detector
	assembler *evidence.Assembler
	hub       *notify.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(cfg *config.Config, db *database.DB, svc *workflow.Service, detector *detect.Detector, assembler *evidence.Assembler, hub *notify.Hub) *Router {
	r := &Router{
		Router:    mux.NewRouter(),
		cfg:       cfg,
		db:        db,
		svc:       svc,
		detector:  detector,
		assembler: assembler,
		hub:       hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Development stand-in for the platform auth service
	if !cfg.IsProduction() {
		r.HandleFunc("/auth/session", r.devSession).Methods("POST")
	}

	auth := middleware.Auth(cfg.JWTSecret)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)

	api.HandleFunc("/detect", r.detectSpots).Methods("POST")

	api.HandleFunc("/signing", r.uploadForSigning).Methods("POST")
	api.HandleFunc("/signing/{id}", r.getSigningFile).Methods("GET")
	api.HandleFunc("/signing/{id}/document", r.getDocument).Methods("GET")
	api.HandleFunc("/signing/{id}/spots/{spotId}/sign", r.signSpot).Methods("POST")
	api.HandleFunc("/signing/{id}/reject", r.rejectFile).Methods("POST")
	api.HandleFunc("/signing/{id}/reupload", r.reuploadFile).Methods("POST")
	api.HandleFunc("/signing/{id}/policy", r.updatePolicy).Methods("PUT")

	api.HandleFunc("/signing/{id}/consent", r.submitConsent).Methods("POST")
	api.HandleFunc("/signing/{id}/otp/request", r.requestOtp).Methods("POST")
	api.HandleFunc("/signing/{id}/otp/verify", r.verifyOtp).Methods("POST")

	api.HandleFunc("/signing/{id}/evidence", r.getEvidence).Methods("GET")
	api.HandleFunc("/signing/{id}/certificate", r.getCertificate).Methods("GET")
	api.HandleFunc("/signing/{id}/audit/verify", r.verifyAuditChain).Methods("GET")

	api.HandleFunc("/users/{id}/deletable", r.userDeletable).Methods("GET")

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(auth)
	ws.HandleFunc("/notifications", r.subscribeNotifications).Methods("GET")

	return r
}

// Handler returns the root http.Handler
func (r *Router) Handler() http.Handler {
	return r.Router
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "lexsign",
		"commit":  buildinfo.CommitHash,
		"started": buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends the stable error code plus a human message. Internal
// details never leak verbatim.
func respondError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	message := "internal error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}
	respondJSON(w, apperr.HTTPStatus(err), map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
