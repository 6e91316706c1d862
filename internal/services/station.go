package services

import (
	"context"
	"time"

	"csms/internal/models"
	"csms/internal/notifier"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

type ChargePointStore interface {
	Upsert(ctx context.Context, cp models.ChargePoint) error
	Get(ctx context.Context, id string) (*models.ChargePoint, error)
	TouchLastSeen(ctx context.Context, id string, t time.Time) error
	SetStatus(ctx context.Context, id, status string) error
}

type StatusAppender interface {
	Append(ctx context.Context, st models.ConnectorStatus) error
}

// Station keeps the durable charge-point record: registration, liveness and
// connector status. Its responses are unconditional acknowledgments, so a
// persistence failure is logged and masked.
type Station struct {
	points            ChargePointStore
	statuses          StatusAppender
	heartbeatInterval int
	events            chan<- notifier.Notification
	log               *logrus.Logger
	now               func() time.Time
}

func NewStation(points ChargePointStore, statuses StatusAppender, heartbeatInterval int, events chan<- notifier.Notification, log *logrus.Logger) *Station {
	return &Station{
		points:            points,
		statuses:          statuses,
		heartbeatInterval: heartbeatInterval,
		events:            events,
		log:               log,
		now:               time.Now,
	}
}

func (s *Station) BootNotification(ctx context.Context, chargePointID string, req *core.BootNotificationRequest) *core.BootNotificationConfirmation {
	now := s.now().UTC()
	err := s.points.Upsert(ctx, models.ChargePoint{
		ID:                chargePointID,
		Vendor:            req.ChargePointVendor,
		Model:             req.ChargePointModel,
		SerialNumber:      req.ChargePointSerialNumber,
		BoxSerialNumber:   req.ChargeBoxSerialNumber,
		FirmwareVersion:   req.FirmwareVersion,
		Iccid:             req.Iccid,
		Imsi:              req.Imsi,
		MeterType:         req.MeterType,
		MeterSerialNumber: req.MeterSerialNumber,
		IsOnline:          true,
		LastSeenAt:        &now,
		BootStatus:        string(core.RegistrationStatusAccepted),
	})
	if err != nil {
		s.logFor(chargePointID, core.BootNotificationFeatureName).Errorf("store boot data: %v", err)
	}

	notifier.Emit(s.events, "boot.notification", map[string]any{
		"chargePointId": chargePointID,
		"vendor":        req.ChargePointVendor,
		"model":         req.ChargePointModel,
	})
	return core.NewBootNotificationConfirmation(types.NewDateTime(s.now()), s.heartbeatInterval, core.RegistrationStatusAccepted)
}

func (s *Station) Heartbeat(ctx context.Context, chargePointID string, req *core.HeartbeatRequest) *core.HeartbeatConfirmation {
	if err := s.points.TouchLastSeen(ctx, chargePointID, s.now().UTC()); err != nil {
		s.logFor(chargePointID, core.HeartbeatFeatureName).Errorf("touch last seen: %v", err)
	}
	notifier.Emit(s.events, "heartbeat", map[string]any{"chargePointId": chargePointID})
	return core.NewHeartbeatConfirmation(types.NewDateTime(s.now()))
}

func (s *Station) StatusNotification(ctx context.Context, chargePointID string, req *core.StatusNotificationRequest) *core.StatusNotificationConfirmation {
	ts := s.now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.Time
	}

	st := models.ConnectorStatus{
		ChargePointID: chargePointID,
		ConnectorID:   req.ConnectorId,
		Status:        string(req.Status),
		ErrorCode:     string(req.ErrorCode),
		Timestamp:     ts,
	}
	if req.Info != "" {
		st.Info = &req.Info
	}
	if req.VendorId != "" {
		st.VendorID = &req.VendorId
	}
	if req.VendorErrorCode != "" {
		st.VendorErrorCode = &req.VendorErrorCode
	}

	if err := s.statuses.Append(ctx, st); err != nil {
		s.logFor(chargePointID, core.StatusNotificationFeatureName).Errorf("store status: %v", err)
	} else if req.ConnectorId == 0 {
		// Connector 0 speaks for the whole station.
		if err := s.points.SetStatus(ctx, chargePointID, string(req.Status)); err != nil {
			s.logFor(chargePointID, core.StatusNotificationFeatureName).Errorf("update aggregate status: %v", err)
		}
	}

	if req.ErrorCode != core.NoError {
		s.logFor(chargePointID, core.StatusNotificationFeatureName).
			Warnf("connector %d reported %v: %v", req.ConnectorId, req.ErrorCode, req.Info)
	}

	notifier.Emit(s.events, "status.notification", map[string]any{
		"chargePointId": chargePointID,
		"connectorId":   req.ConnectorId,
		"status":        string(req.Status),
		"errorCode":     string(req.ErrorCode),
	})
	return core.NewStatusNotificationConfirmation()
}

func (s *Station) logFor(chargePointID, feature string) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{"client": chargePointID, "message": feature})
}
