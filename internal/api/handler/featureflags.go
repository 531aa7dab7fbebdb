package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
	"github.com/chatking/chatking/internal/featureflags"
)

// FlagService is the part of *featureflags.Service the handlers use.
type FlagService interface {
	GetAllFlags(ctx context.Context) map[string]*featureflags.Flag
	SetFlag(ctx context.Context, flag *featureflags.Flag) error
	InvalidateCache()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service FlagService
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service FlagService) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/ops/flags - list all feature flags, sorted by key.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	list := models.FeatureFlagList{Flags: make([]models.FeatureFlag, 0, len(flags))}
	for _, flag := range flags {
		list.Flags = append(list.Flags, toFeatureFlag(flag))
	}
	sort.Slice(list.Flags, func(i, j int) bool { return list.Flags[i].Key < list.Flags[j].Key })

	response.JSON(w, r, http.StatusOK, list)
}

// UpdateFeatureFlag handles PUT /v1/ops/flags/{key} - set one flag. Values
// must be a boolean, number or string.
func (h *FeatureFlagsHandler) UpdateFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var input models.FeatureFlagUpdateRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	switch input.Value.(type) {
	case bool, float64, string:
	default:
		response.BadRequest(w, r, "value must be a boolean, number or string", []models.FieldError{
			{Field: "value", Message: "unsupported type", Code: "INVALID_TYPE"},
		})
		return
	}

	flag := &featureflags.Flag{Key: key, Value: input.Value}
	if err := h.service.SetFlag(r.Context(), flag); err != nil {
		response.InternalError(w, r, "failed to store feature flag")
		return
	}
	response.JSON(w, r, http.StatusOK, toFeatureFlag(flag))
}

// InvalidateCache handles POST /v1/ops/flags/invalidate - drop cached flag values.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func toFeatureFlag(flag *featureflags.Flag) models.FeatureFlag {
	return models.FeatureFlag{
		Key:       flag.Key,
		Value:     flag.Value,
		Enabled:   flag.BoolValue(false),
		UpdatedAt: models.Timestamp(flag.UpdatedAt),
	}
}
