// backend/src/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

// respondServiceError maps the service-layer sentinel errors onto HTTP
// statuses. Ownership violations surface as 404 so the API never confirms
// the existence of another owner's rows.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidAccounts):
		utils.SendJSONError(w, "invalid_accounts: both accounts must exist, be distinct, and belong to you", http.StatusBadRequest)
	case errors.Is(err, services.ErrNotATransfer):
		utils.SendJSONError(w, "not_a_transfer: the transaction is not part of a transfer", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidAmount):
		utils.SendJSONError(w, "Amount must be positive", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidSchedule):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidTarget):
		utils.SendJSONError(w, "invalid_target: target must be a different entity owned by you", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidRange):
		utils.SendJSONError(w, "Invalid date or date range", http.StatusBadRequest)
	case errors.Is(err, services.ErrSystemCategoryImmutable):
		utils.SendJSONError(w, "System categories cannot be modified or deleted", http.StatusForbidden)
	case errors.Is(err, services.ErrPairedTransaction):
		utils.SendJSONError(w, "Transfer legs must be changed through the transfer endpoints", http.StatusConflict)
	case errors.Is(err, services.ErrOrphanPair):
		utils.SendJSONError(w, "orphan_pair: the paired counterpart is missing", http.StatusConflict)
	default:
		logger.L.Error("Unhandled service error", "error", err)
		utils.SendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
