package handler

import (
	"net/http"

	"github.com/keyauthd/keyauthd/internal/domain"
	"github.com/keyauthd/keyauthd/internal/license"
)

// KeyHandler handles the admin key management endpoints.
type KeyHandler struct {
	svc *license.Service
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(svc *license.Service) *KeyHandler {
	return &KeyHandler{svc: svc}
}

// Create mints a new key and returns its plaintext value, the only time it
// is ever returned.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, false, "invalid request body")
		return
	}

	record, err := h.svc.Create(r.Context(), req.Name, req.ExpiresInDays, req.Type)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, &domain.CreateKeyResponse{
		Success:   true,
		Message:   "Key created successfully",
		Key:       record.Key,
		Name:      record.Name,
		Type:      record.Type,
		ExpiresAt: record.ExpiresAt,
	})
}

// List returns all keys, newest first, with derived expired/status fields.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &domain.ListKeysResponse{
		Success: true,
		Total:   len(views),
		Keys:    views,
	})
}

// Revoke permanently deactivates a key.
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req domain.KeyRequest
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		respondMessage(w, http.StatusBadRequest, false, "key is required")
		return
	}

	if err := h.svc.Revoke(r.Context(), req.Key); err != nil {
		handleError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, true, "Key revoked")
}

// Delete permanently removes a key.
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req domain.KeyRequest
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		respondMessage(w, http.StatusBadRequest, false, "key is required")
		return
	}

	if err := h.svc.Delete(r.Context(), req.Key); err != nil {
		handleError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, true, "Key deleted")
}
