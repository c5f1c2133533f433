package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/utils"
)

// AllocationHandler serves payment allocation proposals and commits.
type AllocationHandler struct {
	allocationService services.AllocationService
}

func NewAllocationHandler(service services.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationService: service}
}

// HandleProposeAllocation returns the auto-allocation of a payment amount
// across a counterparty's open obligations, oldest first. Read-only.
func (h *AllocationHandler) HandleProposeAllocation(w http.ResponseWriter, r *http.Request) {
	counterparty := r.URL.Query().Get("counterparty")
	if counterparty == "" {
		utils.SendJSONError(w, "counterparty query parameter is required", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		utils.SendJSONError(w, "invalid amount query parameter", http.StatusBadRequest)
		return
	}

	lines, err := h.allocationService.ProposeAuto(r.Context(), counterparty, amount)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]any{
		"counterparty":   counterparty,
		"payment_amount": amount,
		"allocations":    lines,
	}, http.StatusOK)
}

// HandleCommitAllocation commits one payment action: the body carries the
// payment amount, counterparty and the (obligationId, amount) lines chosen
// by the user or by a prior proposal.
func (h *AllocationHandler) HandleCommitAllocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Counterparty  string                  `json:"counterparty"`
		PaymentAmount decimal.Decimal         `json:"payment_amount"`
		PaymentMethod string                  `json:"payment_method"`
		EntryDate     string                  `json:"entry_date"`
		Allocations   []models.AllocationLine `json:"allocations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger.L.Info("Handling allocation commit",
		"counterparty", body.Counterparty,
		"paymentAmount", body.PaymentAmount.String(),
		"lines", len(body.Allocations))

	result, err := h.allocationService.Commit(r.Context(), services.CommitAllocationInput{
		Counterparty:  body.Counterparty,
		PaymentAmount: body.PaymentAmount,
		PaymentMethod: body.PaymentMethod,
		EntryDate:     body.EntryDate,
		Lines:         body.Allocations,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]any{
		"status": "ok",
		"result": result,
	}, http.StatusCreated)
}
