package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mattpat48/se4iot-se4as/pkg/alert"
	"github.com/mattpat48/se4iot-se4as/pkg/messages"
	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// AlertView is the read side of the alert engine used by the API
type AlertView interface {
	Thresholds() map[string]float64
	States() []alert.SensorState
	Reset(sensorID int) bool
}

// AnalyzerHandler serves the analyzer API
type AnalyzerHandler struct {
	engine AlertView
	pub    transport.Publisher
	logger zerolog.Logger
}

// NewAnalyzerHandler creates a new AnalyzerHandler
func NewAnalyzerHandler(engine AlertView, pub transport.Publisher, logger zerolog.Logger) *AnalyzerHandler {
	return &AnalyzerHandler{
		engine: engine,
		pub:    pub,
		logger: logger.With().Str("handler", "analyzer").Logger(),
	}
}

// Routes returns the analyzer routes
func (h *AnalyzerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/thresholds", h.GetThresholds)
	r.Put("/thresholds", h.PutThresholds)
	r.Get("/alerts", h.ListAlerts)
	r.Delete("/alerts/{sensorId}", h.ResetAlert)

	return r
}

// GetThresholds handles GET /api/v1/thresholds
func (h *AnalyzerHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"thresholds":     h.engine.Thresholds(),
		"correlation_id": GetCorrelationID(r.Context()),
	})
}

// PutThresholds handles PUT /api/v1/thresholds. The update is published as
// the retained threshold message and merged by every analyzer.
func (h *AnalyzerHandler) PutThresholds(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	var req messages.ThresholdsUpdate
	if err := decodeControl(r, &req); err != nil {
		WriteError(w, controlStatus(err), err.Error(), correlationID)
		return
	}

	if err := transport.PublishJSON(r.Context(), h.pub, messages.TopicThresholds, &req, true); err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to publish thresholds")
		WriteError(w, http.StatusServiceUnavailable, "Failed to publish thresholds: "+err.Error(), correlationID)
		return
	}

	h.logger.Info().Interface("thresholds", req.Thresholds).Str("correlation_id", correlationID).Msg("Published thresholds")
	WriteSuccess(w, http.StatusAccepted, "Published to "+messages.TopicThresholds, &req, correlationID)
}

// AlertListResponse lists the hysteresis state of every tracked sensor
type AlertListResponse struct {
	Sensors       []alert.SensorState `json:"sensors"`
	Total         int                 `json:"total"`
	Alerting      int                 `json:"alerting"`
	CorrelationID string              `json:"correlation_id"`
}

// ListAlerts handles GET /api/v1/alerts. ?state=ALERTING narrows the list.
func (h *AnalyzerHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := alert.State(r.URL.Query().Get("state"))

	states := h.engine.States()
	resp := AlertListResponse{
		Sensors:       make([]alert.SensorState, 0, len(states)),
		CorrelationID: GetCorrelationID(r.Context()),
	}
	for _, st := range states {
		if st.State == alert.StateAlerting {
			resp.Alerting++
		}
		if filter != "" && st.State != filter {
			continue
		}
		resp.Sensors = append(resp.Sensors, st)
	}
	resp.Total = len(resp.Sensors)

	WriteJSON(w, http.StatusOK, resp)
}

// ResetAlert handles DELETE /api/v1/alerts/{sensorId}
func (h *AnalyzerHandler) ResetAlert(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	sensorID, err := strconv.Atoi(chi.URLParam(r, "sensorId"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "sensor id must be an integer", correlationID)
		return
	}

	if !h.engine.Reset(sensorID) {
		WriteError(w, http.StatusNotFound, "sensor not tracked", correlationID)
		return
	}

	h.logger.Info().Int("sensor_id", sensorID).Str("correlation_id", correlationID).Msg("Alert state reset")
	WriteSuccess(w, http.StatusOK, "Alert state reset", nil, correlationID)
}
