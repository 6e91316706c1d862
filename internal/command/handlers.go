package command

import (
	"context"
	"encoding/json"
	"fmt"

	"csms/internal/services"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
)

const (
	RemoteStartTransaction = "remote.start.transaction"
	RemoteStopTransaction  = "remote.stop.transaction"
	ChangeAvailability     = "change.availability"
)

// Handlers wires each operator action to the service that decides it.
func Handlers(ledger *services.Ledger, availability *services.Availability) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		RemoteStartTransaction: remoteStart(ledger),
		RemoteStopTransaction:  remoteStop(ledger),
		ChangeAvailability:     changeAvailability(availability),
	}
}

func remoteStart(ledger *services.Ledger) HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload []byte) Response {
		var req core.RemoteStartTransactionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Fail("command.remote.start.transaction", "payload is not valid JSON")
		}
		if req.IdTag == "" {
			return Fail("command.remote.start.transaction", "idTag is required")
		}
		if req.ConnectorId != nil && *req.ConnectorId < 1 {
			return Fail("command.remote.start.transaction", "connectorId must be positive")
		}
		status := ledger.RemoteStart(ctx, chargePointID, &req)
		return Response{Payload: map[string]any{"status": status}}
	}
}

func remoteStop(ledger *services.Ledger) HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload []byte) Response {
		var req struct {
			TransactionID *int `json:"transactionId"`
		}
		if err := json.Unmarshal(payload, &req); err != nil || req.TransactionID == nil {
			return Fail("command.remote.stop.transaction", "transactionId must be an integer")
		}
		status := ledger.RemoteStop(ctx, chargePointID, *req.TransactionID)
		return Response{Payload: map[string]any{"status": status}}
	}
}

func changeAvailability(availability *services.Availability) HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload []byte) Response {
		var req core.ChangeAvailabilityRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Fail("command.change.availability", "payload is not valid JSON")
		}
		if req.Type != core.AvailabilityTypeOperative && req.Type != core.AvailabilityTypeInoperative {
			return Fail("command.change.availability", fmt.Sprintf("unknown availability type %q", req.Type))
		}
		status := availability.ChangeAvailability(ctx, chargePointID, &req)
		return Response{Payload: map[string]any{"status": status}}
	}
}
