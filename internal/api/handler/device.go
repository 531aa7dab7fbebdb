package handler

import (
	"net/http"
	"strings"

	"github.com/chatking/chatking/internal/api/middleware"
	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
	"github.com/chatking/chatking/internal/push"
)

// RegisterToken handles POST /v1/device/token - register the APNs device token.
func (h *PushHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceTokenRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	token := strings.TrimSpace(input.Token)
	if token == "" {
		response.BadRequest(w, r, "token is required", []models.FieldError{
			{Field: "token", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	h.deviceOp(w, r, "", func(done push.Completion) error {
		h.client.RegisterDeviceToken(token, done)
		return nil
	})
}

// SetUser handles POST /v1/user - bind a user id to the device. Without a
// userId in the body the authenticated token subject is used.
func (h *PushHandler) SetUser(w http.ResponseWriter, r *http.Request) {
	var input models.UserRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(w, r, &input); err != nil {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
	}
	userID := input.UserID
	if userID == "" {
		userID = middleware.GetSubject(r.Context())
	}

	h.deviceOp(w, r, userID, func(done push.Completion) error {
		return h.client.SetUserID(userID, done)
	})
}

// ClearDevice handles DELETE /v1/device - delete the device at the vendor,
// wipe local state and re-register.
func (h *PushHandler) ClearDevice(w http.ResponseWriter, r *http.Request) {
	h.deviceOp(w, r, "", func(done push.Completion) error {
		h.client.ClearAllState(done)
		return nil
	})
}

func (h *PushHandler) deviceOp(w http.ResponseWriter, r *http.Request, userID string, op func(push.Completion) error) {
	done, ch := completion()
	if err := op(done); err != nil {
		h.writeError(w, r, err)
		return
	}

	finished, err := h.await(r.Context(), ch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	identity, err := h.client.Identity(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !finished {
		status = http.StatusAccepted
	}
	response.JSON(w, r, status, models.DeviceResponse{
		InstanceID: identity.InstanceID,
		DeviceID:   identity.DeviceID,
		Registered: identity.Registered(),
		UserID:     userID,
		Confirmed:  finished,
	})
}
