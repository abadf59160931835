package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/fleet"
	"github.com/mattpat48/se4iot-se4as/pkg/messages"
	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// SimulatorView is the read side of the simulator used by the API
type SimulatorView interface {
	Snapshot() config.Snapshot
	Fleet() *fleet.Fleet
}

// SimulatorHandler serves the simulator control API. Updates are not applied
// directly: they are published as retained control messages so every
// subscriber converges on the same configuration.
type SimulatorHandler struct {
	sim    SimulatorView
	pub    transport.Publisher
	now    func() time.Time
	logger zerolog.Logger
}

// NewSimulatorHandler creates a new SimulatorHandler
func NewSimulatorHandler(sim SimulatorView, pub transport.Publisher, logger zerolog.Logger) *SimulatorHandler {
	return &SimulatorHandler{
		sim:    sim,
		pub:    pub,
		now:    time.Now,
		logger: logger.With().Str("handler", "simulator").Logger(),
	}
}

// Routes returns the simulator routes
func (h *SimulatorHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/config", h.GetConfig)
	r.Get("/config/presets", h.ListPresets)
	r.Put("/config/locations", h.PutLocations)
	r.Put("/config/sensors", h.PutSensorConfig)
	r.Get("/fleet", h.GetFleet)

	r.Put("/emergency", h.PutEmergency)
	r.Delete("/emergency", h.StopEmergency)
	r.Get("/emergency/scenarios", h.ListScenarios)
	r.Post("/emergency/scenarios/{name}", h.StartScenario)

	return r
}

// ConfigResponse is the live configuration
type ConfigResponse struct {
	config.Snapshot
	CorrelationID string `json:"correlation_id"`
}

// GetConfig handles GET /api/v1/config
func (h *SimulatorHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ConfigResponse{
		Snapshot:      h.sim.Snapshot(),
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// ListPresets handles GET /api/v1/config/presets
func (h *SimulatorHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"presets":        config.LAquilaPresets,
		"correlation_id": GetCorrelationID(r.Context()),
	})
}

// FleetResponse lists the live sensor instances
type FleetResponse struct {
	Generation    uint64            `json:"generation"`
	BuiltAt       time.Time         `json:"built_at"`
	Total         int               `json:"total"`
	Instances     []*fleet.Instance `json:"instances"`
	CorrelationID string            `json:"correlation_id"`
}

// GetFleet handles GET /api/v1/fleet
func (h *SimulatorHandler) GetFleet(w http.ResponseWriter, r *http.Request) {
	f := h.sim.Fleet()
	WriteJSON(w, http.StatusOK, FleetResponse{
		Generation:    f.Generation,
		BuiltAt:       f.BuiltAt,
		Total:         f.Len(),
		Instances:     f.Instances,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// PutLocations handles PUT /api/v1/config/locations
func (h *SimulatorHandler) PutLocations(w http.ResponseWriter, r *http.Request) {
	var req messages.LocationsUpdate
	if err := decodeControl(r, &req); err != nil {
		WriteError(w, controlStatus(err), err.Error(), GetCorrelationID(r.Context()))
		return
	}
	h.publish(w, r, messages.TopicLocations, &req)
}

// PutSensorConfig handles PUT /api/v1/config/sensors
func (h *SimulatorHandler) PutSensorConfig(w http.ResponseWriter, r *http.Request) {
	var req messages.SensorConfigUpdate
	if err := decodeControl(r, &req); err != nil {
		WriteError(w, controlStatus(err), err.Error(), GetCorrelationID(r.Context()))
		return
	}
	h.publish(w, r, messages.TopicSensorConfig, &req)
}

// PutEmergency handles PUT /api/v1/emergency with a raw emergency payload
func (h *SimulatorHandler) PutEmergency(w http.ResponseWriter, r *http.Request) {
	var req messages.EmergencyUpdate
	if err := decodeControl(r, &req); err != nil {
		WriteError(w, controlStatus(err), err.Error(), GetCorrelationID(r.Context()))
		return
	}
	if req.Timestamp == "" {
		req.Timestamp = h.now().Format(config.EmergencyTimestampLayout)
	}
	h.publish(w, r, messages.TopicEmergency, &req)
}

// StopEmergency handles DELETE /api/v1/emergency
func (h *SimulatorHandler) StopEmergency(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, messages.TopicEmergency, config.StopPayload(h.now()))
}

// ListScenarios handles GET /api/v1/emergency/scenarios
func (h *SimulatorHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := make([]config.Scenario, 0, len(config.Scenarios))
	for _, name := range config.ScenarioNames() {
		scenarios = append(scenarios, config.Scenarios[name])
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios":      scenarios,
		"severities":     config.Severities,
		"correlation_id": GetCorrelationID(r.Context()),
	})
}

// StartScenarioRequest selects where and how hard a scenario hits
type StartScenarioRequest struct {
	Location string `json:"location"`
	Severity string `json:"severity"`
}

// StartScenario handles POST /api/v1/emergency/scenarios/{name}
func (h *SimulatorHandler) StartScenario(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	name := chi.URLParam(r, "name")
	scenario, ok := config.Scenarios[name]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown scenario: "+name, correlationID)
		return
	}

	var req StartScenarioRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error(), correlationID)
		return
	}

	payload, err := scenario.StartPayload(req.Location, req.Severity, h.now())
	if err != nil {
		WriteError(w, controlStatus(err), err.Error(), correlationID)
		return
	}
	h.publish(w, r, messages.TopicEmergency, payload)
}

// publish sends v as the retained value of topic and answers 202
func (h *SimulatorHandler) publish(w http.ResponseWriter, r *http.Request, topic string, v interface{}) {
	correlationID := GetCorrelationID(r.Context())

	if err := transport.PublishJSON(r.Context(), h.pub, topic, v, true); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Str("correlation_id", correlationID).Msg("Failed to publish control message")
		WriteError(w, http.StatusServiceUnavailable, "Failed to publish control message: "+err.Error(), correlationID)
		return
	}

	h.logger.Info().Str("topic", topic).Str("correlation_id", correlationID).Msg("Published control message")
	WriteSuccess(w, http.StatusAccepted, "Published to "+topic, v, correlationID)
}
