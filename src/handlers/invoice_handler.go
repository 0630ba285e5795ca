// backend/src/handlers/invoice_handler.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/username/centsible/backend/src/config"
	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/models"
	"github.com/username/centsible/backend/src/security/validation"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
)

type InvoiceHandler struct {
	ledgerService   services.LedgerService
	deletionService services.DeletionService
	summaryService  services.SummaryService
}

func NewInvoiceHandler(ledger services.LedgerService, deletion services.DeletionService, summary services.SummaryService) *InvoiceHandler {
	return &InvoiceHandler{ledgerService: ledger, deletionService: deletion, summaryService: summary}
}

// UploadInvoiceHandler stores an uploaded receipt file and records it as a
// pending invoice. Files land under the configured storage path with a random
// name; the client-supplied name is kept only as metadata.
func (h *InvoiceHandler) UploadInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, "File too large or malformed multipart body", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "A 'file' form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	originalName := validation.CleanUserText(filepath.Base(header.Filename))
	ext := strings.ToLower(filepath.Ext(originalName))
	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg":
	default:
		utils.SendJSONError(w, "Only pdf, png and jpeg files are accepted", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(config.Cfg.InvoiceStoragePath, 0o750); err != nil {
		ctxLogger.Error("Failed to ensure invoice storage directory", "error", err)
		utils.SendJSONError(w, "Failed to store invoice", http.StatusInternalServerError)
		return
	}
	storedName := uuid.New().String() + ext
	storedPath := filepath.Join(config.Cfg.InvoiceStoragePath, storedName)

	dst, err := os.OpenFile(storedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		ctxLogger.Error("Failed to create invoice file", "path", storedPath, "error", err)
		utils.SendJSONError(w, "Failed to store invoice", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(storedPath)
		ctxLogger.Error("Failed to write invoice file", "path", storedPath, "error", err)
		utils.SendJSONError(w, "Failed to store invoice", http.StatusInternalServerError)
		return
	}
	dst.Close()

	res, err := database.DB.Exec(
		"INSERT INTO invoices (user_id, file_path, original_name, status) VALUES (?, ?, ?, ?)",
		userID, storedPath, originalName, models.InvoicePending)
	if err != nil {
		os.Remove(storedPath)
		ctxLogger.Error("Failed to record invoice", "error", err)
		utils.SendJSONError(w, "Failed to store invoice", http.StatusInternalServerError)
		return
	}
	invoiceID, _ := res.LastInsertId()

	ctxLogger.Info("Invoice uploaded", "invoiceID", invoiceID, "originalName", originalName)
	utils.SendJSON(w, map[string]any{
		"id":            invoiceID,
		"original_name": originalName,
		"status":        models.InvoicePending,
	}, http.StatusCreated)
}

func (h *InvoiceHandler) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(
		"SELECT id, user_id, file_path, original_name, status, created_at FROM invoices WHERE user_id = ? AND deleted_at IS NULL ORDER BY id DESC",
		userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list invoices", "error", err)
		utils.SendJSONError(w, "Failed to list invoices", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.FilePath, &inv.OriginalName, &inv.Status, &inv.CreatedAt); err != nil {
			utils.SendJSONError(w, "Failed to list invoices", http.StatusInternalServerError)
			return
		}
		invoices = append(invoices, inv)
	}
	utils.SendJSON(w, invoices, http.StatusOK)
}

func (h *InvoiceHandler) DownloadInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	invoiceID, err := parsePathID(r, "invoiceID")
	if err != nil {
		utils.SendJSONError(w, "Invalid invoice ID", http.StatusBadRequest)
		return
	}

	var filePath, originalName string
	err = database.DB.QueryRow(
		"SELECT file_path, original_name FROM invoices WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		invoiceID, userID,
	).Scan(&filePath, &originalName)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+originalName+"\"")
	http.ServeFile(w, r, filePath)
}

// CommitInvoiceHandler turns a pending invoice's line items into ordinary
// ledger transactions carrying the invoice id for provenance, then marks the
// invoice committed.
func (h *InvoiceHandler) CommitInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	invoiceID, err := parsePathID(r, "invoiceID")
	if err != nil {
		utils.SendJSONError(w, "Invalid invoice ID", http.StatusBadRequest)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var payload struct {
		Items []services.TransactionInput `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.Items) == 0 {
		utils.SendJSONError(w, "At least one line item is required", http.StatusBadRequest)
		return
	}

	var status string
	err = database.DB.QueryRow(
		"SELECT status FROM invoices WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		invoiceID, userID,
	).Scan(&status)
	if err != nil {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if status != models.InvoicePending {
		utils.SendJSONError(w, "Invoice is already committed", http.StatusConflict)
		return
	}

	created := make([]models.Transaction, 0, len(payload.Items))
	for _, item := range payload.Items {
		item.InvoiceID = &invoiceID
		item.Description = validation.CleanUserText(item.Description)
		txn, err := h.ledgerService.CreateTransaction(userID, item)
		if err != nil {
			// Committed items stay; reported so the client can retry the rest.
			ctxLogger.Error("Invoice line item failed", "invoiceID", invoiceID, "error", err)
			respondServiceError(w, err)
			return
		}
		created = append(created, *txn)
	}

	if _, err := database.DB.Exec(
		"UPDATE invoices SET status = ? WHERE id = ? AND user_id = ?",
		models.InvoiceCommitted, invoiceID, userID); err != nil {
		ctxLogger.Error("Failed to mark invoice committed", "invoiceID", invoiceID, "error", err)
		utils.SendJSONError(w, "Failed to commit invoice", http.StatusInternalServerError)
		return
	}

	h.summaryService.Invalidate(userID)
	ctxLogger.Info("Invoice committed", "invoiceID", invoiceID, "items", len(created))
	utils.SendJSON(w, map[string]any{"invoice_id": invoiceID, "transactions": created}, http.StatusOK)
}

// DeleteInvoiceHandler soft-deletes the invoice and detaches its transactions.
// The transactions themselves survive; only the provenance link is cleared.
func (h *InvoiceHandler) DeleteInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}
	invoiceID, err := parsePathID(r, "invoiceID")
	if err != nil {
		utils.SendJSONError(w, "Invalid invoice ID", http.StatusBadRequest)
		return
	}

	detached, err := h.deletionService.DeleteInvoice(userID, invoiceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Invoice deleted", "invoiceID", invoiceID, "transactionsDetached", detached)
	utils.SendJSON(w, map[string]any{"transactions_detached": detached}, http.StatusOK)
}
