package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/username/ledgerlink/backend/src/logger"
	"github.com/username/ledgerlink/backend/src/models"
	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/utils"
)

// BankHandler serves bank transaction entry, candidate search, allocation
// preview and the allocation commit itself.
type BankHandler struct {
	bankMatchService services.BankMatchService
}

func NewBankHandler(service services.BankMatchService) *BankHandler {
	return &BankHandler{bankMatchService: service}
}

func (h *BankHandler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TxnDate      string          `json:"txn_date"`
		Description  string          `json:"description"`
		DebitAmount  decimal.Decimal `json:"debit_amount"`
		CreditAmount decimal.Decimal `json:"credit_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.bankMatchService.RecordTransaction(r.Context(), &models.BankTransaction{
		TxnDate:      body.TxnDate,
		Description:  body.Description,
		DebitAmount:  body.DebitAmount,
		CreditAmount: body.CreditAmount,
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, txn, http.StatusCreated)
}

// HandleFindCandidates searches bank transactions near an amount and date.
// Query parameters: amount, date, window_days, direction (after|before|both),
// vendor (optional description substring).
func (h *BankHandler) HandleFindCandidates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		utils.SendJSONError(w, "invalid amount query parameter", http.StatusBadRequest)
		return
	}
	windowDays := 7
	if raw := query.Get("window_days"); raw != "" {
		windowDays, err = strconv.Atoi(raw)
		if err != nil || windowDays < 0 {
			utils.SendJSONError(w, "invalid window_days query parameter", http.StatusBadRequest)
			return
		}
	}

	candidates, err := h.bankMatchService.FindCandidates(r.Context(), services.CandidateQuery{
		Amount:       amount,
		Date:         query.Get("date"),
		WindowDays:   windowDays,
		Direction:    query.Get("direction"),
		VendorFilter: query.Get("vendor"),
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if candidates == nil {
		candidates = []models.BankTransaction{}
	}
	utils.SendJSON(w, candidates, http.StatusOK)
}

func (h *BankHandler) HandleAllocationPreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid bank transaction id", http.StatusBadRequest)
		return
	}
	preview, err := h.bankMatchService.Preview(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if preview.Linked == nil {
		preview.Linked = []models.Obligation{}
	}
	utils.SendJSON(w, preview, http.StatusOK)
}

// HandleAllocate links obligations to a bank transaction. Both the
// allocated total and the transaction debit are reported back even on
// tolerance rejection so the caller can correct and retry.
func (h *BankHandler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		utils.SendJSONError(w, "invalid bank transaction id", http.StatusBadRequest)
		return
	}
	var body struct {
		Actor       string                  `json:"actor"`
		Allocations []models.AllocationLine `json:"allocations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger.L.Info("Handling bank allocation",
		"bankTransactionID", id, "lines", len(body.Allocations), "actor", body.Actor)

	result, err := h.bankMatchService.Allocate(r.Context(), id, body.Allocations, body.Actor)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSON(w, map[string]any{"status": "not_found", "error": err.Error()}, http.StatusNotFound)
			return
		}
		response := map[string]any{
			"status": "error",
			"code":   errorCode(err),
			"error":  err.Error(),
		}
		if result != nil {
			response["total_allocated"] = result.TotalAllocated
			response["debit_amount"] = result.DebitAmount
		}
		utils.SendJSON(w, response, errorStatus(err))
		return
	}
	utils.SendJSON(w, map[string]any{
		"status":          "ok",
		"total_allocated": result.TotalAllocated,
		"debit_amount":    result.DebitAmount,
		"matches":         result.Matches,
	}, http.StatusOK)
}
