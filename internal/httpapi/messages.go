package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// HandleMessage accepts one decoded charge-point action from the gateway and
// returns the protocol response. The dispatch layer guarantees at most one
// in-flight message per charge-point connection.
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	chargePointID := chi.URLParam(r, "chargePointId")
	action := chi.URLParam(r, "action")

	raw, err := readAll(r, 2<<20)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	if err := s.Messages.InsertRaw(r.Context(), chargePointID, action, time.Now().UTC(), raw); err != nil {
		s.Log.WithField("client", chargePointID).Errorf("record inbound %v: %v", action, err)
	}

	switch action {
	case core.BootNotificationFeatureName:
		var req core.BootNotificationRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Station.BootNotification(r.Context(), chargePointID, &req))

	case core.HeartbeatFeatureName:
		var req core.HeartbeatRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Station.Heartbeat(r.Context(), chargePointID, &req))

	case core.AuthorizeFeatureName:
		var req core.AuthorizeRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Auth.Authorize(r.Context(), chargePointID, &req))

	case core.StartTransactionFeatureName:
		var req core.StartTransactionRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Ledger.StartTransaction(r.Context(), chargePointID, &req))

	case core.StopTransactionFeatureName:
		var req core.StopTransactionRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Ledger.StopTransaction(r.Context(), chargePointID, &req))

	case core.MeterValuesFeatureName:
		var req core.MeterValuesRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Telemetry.MeterValues(r.Context(), chargePointID, &req))

	case core.StatusNotificationFeatureName:
		var req core.StatusNotificationRequest
		if !decode(w, raw, &req) {
			return
		}
		writeJSON(w, s.Station.StatusNotification(r.Context(), chargePointID, &req))

	default:
		http.Error(w, "unsupported action", http.StatusNotFound)
	}
}

func decode(w http.ResponseWriter, raw []byte, req any) bool {
	if err := json.Unmarshal(raw, req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if err := types.Validate.Struct(req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
