package handler

import (
	"net/http"
	"time"

	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
	"github.com/chatking/chatking/internal/provider/resilience"
	"github.com/chatking/chatking/internal/queue"
)

// ProviderHealth lists the health of upstream providers.
type ProviderHealth interface {
	All() []resilience.Health
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	client    PushClient
	providers ProviderHealth
}

// NewOpsHandler creates a new OpsHandler. providers may be nil.
func NewOpsHandler(version, buildTime string, client PushClient, providers ProviderHealth) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		client:    client,
		providers: providers,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// SystemStatus handles GET /v1/ops/status - device, queue and provider status.
//
// The agent is DEGRADED while the device is unregistered or any provider
// circuit is not closed.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := h.client.Identity(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to read device state")
		return
	}

	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Device: models.DeviceStatus{
			InstanceID: identity.InstanceID,
			DeviceID:   identity.DeviceID,
			Registered: identity.Registered(),
			QueueState: h.client.QueueState().String(),
		},
		Providers: []models.ProviderStatus{},
	}
	if !identity.Registered() || h.client.QueueState() != queue.Active {
		status.Status = models.HealthStatusDegraded
	}

	if h.providers != nil {
		for _, health := range h.providers.All() {
			provider := providerStatus(health)
			if provider.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, provider)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(health resilience.Health) models.ProviderStatus {
	status := models.ProviderStatus{
		Provider:     health.Name,
		Status:       models.HealthStatusOK,
		CircuitState: health.State,
	}
	if !health.Healthy() {
		status.Status = models.HealthStatusFail
	}
	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		status.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		status.LastFailureAt = &ts
	}
	if health.LastError != "" {
		msg := health.LastError
		status.Message = &msg
	}
	return status
}
