package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/utils"
)

// SplitHandler serves the composite-charge split operation.
type SplitHandler struct {
	splitService services.SplitService
}

func NewSplitHandler(service services.SplitService) *SplitHandler {
	return &SplitHandler{splitService: service}
}

// HandleAutoSplit decomposes an obligation into base + fee child. The body
// may carry an explicit base_amount; without one the description heuristic
// is attempted and the response's base_source says so.
func (h *SplitHandler) HandleAutoSplit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid obligation id", http.StatusBadRequest)
		return
	}

	var body struct {
		BaseAmount *decimal.Decimal `json:"base_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger.L.Info("Handling auto-split", "obligationID", id, "explicitBase", body.BaseAmount != nil)

	result, err := h.splitService.Split(r.Context(), id, body.BaseAmount)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}
