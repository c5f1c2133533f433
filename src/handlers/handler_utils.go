package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/username/ledgerlink/backend/src/services"
	"github.com/username/ledgerlink/backend/src/utils"
)

// errorCode maps a service error onto the short code the presentation
// layer switches on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, services.ErrNothingToAllocate):
		return "nothing_to_allocate"
	case errors.Is(err, services.ErrOverAllocation):
		return "over_allocation"
	case errors.Is(err, services.ErrToleranceExceeded):
		return "tolerance_exceeded"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrBaseAmountRequired):
		return "needs_input"
	case errors.Is(err, services.ErrSplitChild):
		return "split_child"
	case errors.Is(err, services.ErrHasChildren):
		return "has_children"
	default:
		return "internal_error"
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrToleranceExceeded):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrNothingToAllocate),
		errors.Is(err, services.ErrOverAllocation),
		errors.Is(err, services.ErrBaseAmountRequired),
		errors.Is(err, services.ErrSplitChild),
		errors.Is(err, services.ErrHasChildren):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sendServiceError(w http.ResponseWriter, err error) {
	utils.SendJSON(w, map[string]string{
		"status": "error",
		"code":   errorCode(err),
		"error":  err.Error(),
	}, errorStatus(err))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
