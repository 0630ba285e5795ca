// backend/src/handlers/transfer_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

// TransferHandler exposes the paired-transaction operations. Transfer legs are
// never created or mutated through the plain transaction endpoints.
type TransferHandler struct {
	pairingService services.PairingService
	summaryService services.SummaryService
}

func NewTransferHandler(pairing services.PairingService, summary services.SummaryService) *TransferHandler {
	return &TransferHandler{pairingService: pairing, summaryService: summary}
}

type transferResponse struct {
	Outgoing *models.Transaction `json:"outgoing"`
	Incoming *models.Transaction `json:"incoming"`
}

func (h *TransferHandler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var in services.TransferInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in.Description = validation.CleanUserText(in.Description)

	outgoing, incoming, err := h.pairingService.CreateTransfer(userID, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Transfer created",
		"outgoingID", outgoing.ID, "incomingID", incoming.ID,
		"fromAccountID", in.FromAccountID, "toAccountID", in.ToAccountID)
	utils.SendJSON(w, transferResponse{Outgoing: outgoing, Incoming: incoming}, http.StatusCreated)
}

// UpdateTransferHandler edits a transfer through either of its legs. Both legs
// change together so the pair stays symmetric.
func (h *TransferHandler) UpdateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	legID, err := parsePathID(r, "transactionID")
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var upd services.TransferUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if upd.Description != nil {
		cleaned := validation.CleanUserText(*upd.Description)
		upd.Description = &cleaned
	}

	outgoing, incoming, err := h.pairingService.UpdateTransfer(userID, legID, upd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	utils.SendJSON(w, transferResponse{Outgoing: outgoing, Incoming: incoming}, http.StatusOK)
}

// DeleteTransferHandler removes both legs of a transfer. When the pair link is
// already broken the surviving leg alone is removed and reported.
func (h *TransferHandler) DeleteTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	legID, err := parsePathID(r, "transactionID")
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	removed, err := h.pairingService.DeleteTransfer(userID, legID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.summaryService.Invalidate(userID)
	logger.FromContext(r.Context()).Info("Transfer deleted", "legID", legID, "legsRemoved", removed)
	utils.SendJSON(w, map[string]any{"legs_removed": removed}, http.StatusOK)
}
