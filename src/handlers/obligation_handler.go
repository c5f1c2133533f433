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

// ObligationHandler serves obligation entry, statement views and the
// guarded delete.
type ObligationHandler struct {
	obligationService services.ObligationService
}

func NewObligationHandler(service services.ObligationService) *ObligationHandler {
	return &ObligationHandler{obligationService: service}
}

func (h *ObligationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Counterparty string          `json:"counterparty"`
		IssueDate    string          `json:"issue_date"`
		AmountGross  decimal.Decimal `json:"amount_gross"`
		AmountNet    decimal.Decimal `json:"amount_net"`
		AmountStated decimal.Decimal `json:"amount_stated"`
		Description  string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	obligation, err := h.obligationService.Create(r.Context(), services.CreateObligationInput{
		Counterparty: body.Counterparty,
		IssueDate:    body.IssueDate,
		AmountGross:  body.AmountGross,
		AmountNet:    body.AmountNet,
		AmountStated: body.AmountStated,
		Description:  body.Description,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, obligation, http.StatusCreated)
}

func (h *ObligationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid obligation id", http.StatusBadRequest)
		return
	}
	detail, err := h.obligationService.Get(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if detail.Entries == nil {
		detail.Entries = []models.LedgerEntry{}
	}
	utils.SendJSON(w, detail, http.StatusOK)
}

// HandleList serves the ageing/statement view for one counterparty, each
// row carrying its balance, running balance and paid status.
func (h *ObligationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	counterparty := r.URL.Query().Get("counterparty")
	if counterparty == "" {
		utils.SendJSONError(w, "counterparty query parameter is required", http.StatusBadRequest)
		return
	}
	summaries, err := h.obligationService.ListByCounterparty(r.Context(), counterparty)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []models.ObligationSummary{}
	}
	utils.SendJSON(w, summaries, http.StatusOK)
}

func (h *ObligationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid obligation id", http.StatusBadRequest)
		return
	}
	if err := h.obligationService.Delete(r.Context(), id); err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Handled obligation delete", "obligationID", id)
	utils.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
