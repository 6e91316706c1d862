package services

import (
	"context"
	"strconv"
	"time"

	"csms/internal/models"
	"csms/internal/notifier"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

type SessionFinder interface {
	FindByTransaction(ctx context.Context, transactionID int) (*models.Session, error)
}

type MeterValueStore interface {
	InsertBatch(ctx context.Context, values []models.MeterValue) error
}

// Telemetry normalizes and persists meter readings. A reading that cannot be
// coerced to a number is skipped and logged; only a failure of the whole
// batch write surfaces to the caller.
type Telemetry struct {
	sessions SessionFinder
	meters   MeterValueStore
	events   chan<- notifier.Notification
	log      *logrus.Logger
	now      func() time.Time
}

func NewTelemetry(sessions SessionFinder, meters MeterValueStore, events chan<- notifier.Notification, log *logrus.Logger) *Telemetry {
	return &Telemetry{sessions: sessions, meters: meters, events: events, log: log, now: time.Now}
}

// Ingest flattens a meter-value batch into rows. defaultContext differs by
// caller: periodic sampling for MeterValues, transaction end for the data
// riding on a StopTransaction.
func (t *Telemetry) Ingest(ctx context.Context, chargePointID string, transactionID *int, batch []types.MeterValue, defaultContext types.ReadingContext) error {
	var sessionID *int64
	if transactionID != nil {
		sess, err := t.sessions.FindByTransaction(ctx, *transactionID)
		if err != nil {
			t.log.WithField("client", chargePointID).Errorf("session lookup for transaction %d: %v", *transactionID, err)
		} else if sess == nil {
			// Orphaned readings are kept, just un-owned.
			t.log.WithField("client", chargePointID).Warnf("transaction %d not found for meter values", *transactionID)
		} else {
			sessionID = &sess.ID
		}
	}

	var rows []models.MeterValue
	for _, mv := range batch {
		ts := t.now().UTC()
		if mv.Timestamp != nil {
			ts = mv.Timestamp.Time
		}
		for _, sv := range mv.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				t.log.WithField("client", chargePointID).Errorf("invalid meter value %q, skipping", sv.Value)
				continue
			}
			row := models.MeterValue{
				SessionID: sessionID,
				Timestamp: ts,
				Value:     value,
				Unit:      defaultString(string(sv.Unit), string(types.UnitOfMeasureWh)),
				Measurand: defaultString(string(sv.Measurand), string(types.MeasurandEnergyActiveImportRegister)),
				Location:  defaultString(string(sv.Location), string(types.LocationOutlet)),
				Context:   defaultString(string(sv.Context), string(defaultContext)),
				Format:    defaultString(string(sv.Format), string(types.ValueFormatRaw)),
			}
			if sv.Phase != "" {
				phase := string(sv.Phase)
				row.Phase = &phase
			}
			rows = append(rows, row)
		}
	}

	return t.meters.InsertBatch(ctx, rows)
}

// MeterValues handles the MeterValues action. The acknowledgment is
// unconditional: a failed batch write is logged, not surfaced.
func (t *Telemetry) MeterValues(ctx context.Context, chargePointID string, req *core.MeterValuesRequest) *core.MeterValuesConfirmation {
	if err := t.Ingest(ctx, chargePointID, req.TransactionId, req.MeterValue, types.ReadingContextSamplePeriodic); err != nil {
		t.log.WithFields(logrus.Fields{"client": chargePointID, "message": core.MeterValuesFeatureName}).
			Errorf("store meter values: %v", err)
	}

	notifier.Emit(t.events, "meter.values", map[string]any{
		"chargePointId": chargePointID,
		"connectorId":   req.ConnectorId,
		"count":         len(req.MeterValue),
	})
	return core.NewMeterValuesConfirmation()
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
