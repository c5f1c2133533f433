package handlers

import "net/http"

// NewRouter wires every API route onto a ServeMux. Kept separate from main
// so handler tests can stand up the full routing table in-process.
func NewRouter(
	allocationHandler *AllocationHandler,
	bankHandler *BankHandler,
	splitHandler *SplitHandler,
	verificationHandler *VerificationHandler,
	obligationHandler *ObligationHandler,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/allocations", allocationHandler.HandleCommitAllocation)
	mux.HandleFunc("GET /api/allocations/proposal", allocationHandler.HandleProposeAllocation)

	mux.HandleFunc("POST /api/bank-transactions", bankHandler.HandleRecordTransaction)
	mux.HandleFunc("GET /api/bank-transactions/candidates", bankHandler.HandleFindCandidates)
	mux.HandleFunc("GET /api/bank-transactions/{id}/allocation-preview", bankHandler.HandleAllocationPreview)
	mux.HandleFunc("POST /api/bank-transactions/{id}/allocate", bankHandler.HandleAllocate)

	mux.HandleFunc("POST /api/obligations", obligationHandler.HandleCreate)
	mux.HandleFunc("GET /api/obligations", obligationHandler.HandleList)
	mux.HandleFunc("GET /api/obligations/{id}", obligationHandler.HandleGet)
	mux.HandleFunc("DELETE /api/obligations/{id}", obligationHandler.HandleDelete)
	mux.HandleFunc("POST /api/obligations/{id}/auto-split", splitHandler.HandleAutoSplit)
	mux.HandleFunc("POST /api/obligations/{id}/verify", verificationHandler.HandleVerify)
	mux.HandleFunc("POST /api/obligations/{id}/unverify", verificationHandler.HandleUnverify)

	mux.HandleFunc("GET /api/verification/summary", verificationHandler.HandleSummary)
	mux.HandleFunc("GET /api/verification/by-year", verificationHandler.HandleByYear)

	return mux
}
