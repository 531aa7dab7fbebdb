package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
	"github.com/chatking/chatking/internal/push"
)

// ListInterests handles GET /v1/interests.
func (h *PushHandler) ListInterests(w http.ResponseWriter, r *http.Request) {
	h.writeInterests(w, r, http.StatusOK)
}

// SetInterests handles PUT /v1/interests - replace the whole set.
func (h *PushHandler) SetInterests(w http.ResponseWriter, r *http.Request) {
	var input models.InterestsRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if input.Interests == nil {
		response.BadRequest(w, r, "interests is required", []models.FieldError{
			{Field: "interests", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	h.mutate(w, r, func(done push.Completion) error {
		return h.client.SetSubscriptions(input.Interests, done)
	})
}

// ClearInterests handles DELETE /v1/interests.
func (h *PushHandler) ClearInterests(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.client.UnsubscribeAll)
}

// AddInterest handles POST /v1/interests/{interest}.
func (h *PushHandler) AddInterest(w http.ResponseWriter, r *http.Request) {
	interest, ok := interestParam(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(done push.Completion) error {
		return h.client.Subscribe(interest, done)
	})
}

// RemoveInterest handles DELETE /v1/interests/{interest}.
func (h *PushHandler) RemoveInterest(w http.ResponseWriter, r *http.Request) {
	interest, ok := interestParam(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(done push.Completion) error {
		return h.client.Unsubscribe(interest, done)
	})
}

// mutate runs an interest mutation and answers with the local set: 200 once
// the vendor confirmed it, 202 while confirmation is still pending.
func (h *PushHandler) mutate(w http.ResponseWriter, r *http.Request, op func(push.Completion) error) {
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
	status := http.StatusOK
	if !finished {
		status = http.StatusAccepted
	}
	h.writeInterests(w, r, status)
}

func (h *PushHandler) writeInterests(w http.ResponseWriter, r *http.Request, status int) {
	interests, err := h.client.Interests(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inSync, err := h.client.InSync(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, status, models.InterestsResponse{Interests: interests, Confirmed: inSync})
}

// interestParam returns the unescaped {interest} path parameter.
func interestParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	interest, err := url.PathUnescape(chi.URLParam(r, "interest"))
	if err != nil || interest == "" {
		response.BadRequest(w, r, "interest path parameter is malformed", []models.FieldError{
			{Field: "interest", Message: "malformed path segment", Code: "INVALID_INTEREST"},
		})
		return "", false
	}
	return interest, true
}
