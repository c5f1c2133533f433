package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/utils"
)

// VerificationHandler serves the physical-verification flag and its
// aggregate views.
type VerificationHandler struct {
	verificationService services.VerificationService
}

func NewVerificationHandler(service services.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: service}
}

func (h *VerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid obligation id", http.StatusBadRequest)
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.verificationService.MarkVerified(r.Context(), id, body.Actor)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Obligation marked verified", "obligationID", id, "actor", body.Actor)
	utils.SendJSON(w, summary, http.StatusOK)
}

func (h *VerificationHandler) HandleUnverify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid obligation id", http.StatusBadRequest)
		return
	}
	summary, err := h.verificationService.MarkUnverified(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Obligation marked unverified", "obligationID", id)
	utils.SendJSON(w, summary, http.StatusOK)
}

func (h *VerificationHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.verificationService.Summary(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, summary, http.StatusOK)
}

func (h *VerificationHandler) HandleByYear(w http.ResponseWriter, r *http.Request) {
	byYear, err := h.verificationService.ByYear(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, byYear, http.StatusOK)
}
