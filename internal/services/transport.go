package services

import (
	"context"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
)

// Transport carries correlated outbound commands to a charge point. The
// implementation lives outside the core; no timeout or retry here.
type Transport interface {
	StopTransaction(ctx context.Context, chargePointID string, req *core.StopTransactionRequest) (*core.StopTransactionConfirmation, error)
	StatusNotification(ctx context.Context, chargePointID string, req *core.StatusNotificationRequest) (*core.StatusNotificationConfirmation, error)
}
