package handler

import (
	"errors"
	"net/http"

	"github.com/keyauthd/keyauthd/internal/domain"
	"github.com/keyauthd/keyauthd/internal/license"
)

// VerifyHandler handles the public verification endpoint.
type VerifyHandler struct {
	svc *license.Service
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(svc *license.Service) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

// Verify validates a key and, in device mode, binds it to the presenting
// device on first use.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, false, "invalid request body")
		return
	}

	user, err := h.svc.Verify(r.Context(), req.Key, req.DeviceID, req.DeviceName)
	if err != nil {
		var verr *domain.VerifyError
		if errors.As(err, &verr) {
			status, message := rejectResponse(verr)
			respondMessage(w, status, false, message)
			return
		}
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &domain.VerifyResponse{
		Success: true,
		Message: "Key is valid",
		User:    user,
	})
}

// rejectResponse maps each rejection reason to its status code and
// client-visible message. Reasons are never merged.
func rejectResponse(verr *domain.VerifyError) (int, string) {
	switch verr.Reason {
	case domain.RejectMissingKey:
		return http.StatusBadRequest, "key is required"
	case domain.RejectMissingDeviceID:
		return http.StatusBadRequest, "deviceId is required"
	case domain.RejectInvalidKey:
		return http.StatusUnauthorized, "Invalid key"
	case domain.RejectRevoked:
		return http.StatusForbidden, "Key has been revoked"
	case domain.RejectExpired:
		return http.StatusForbidden, "Key has expired"
	case domain.RejectDeviceMismatch:
		message := "Key is already in use on another device"
		if verr.BoundDeviceName != "" {
			message += ": " + verr.BoundDeviceName
		}
		return http.StatusForbidden, message
	default:
		return http.StatusForbidden, "Key verification failed"
	}
}
