package services

import (
	"context"
	"fmt"
	"time"

	"csms/internal/scheduler"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

type SessionActivity interface {
	HasActiveSession(ctx context.Context, chargePointID string, connectorID int) (bool, error)
}

type AvailabilityStore interface {
	ConnectorStateReader
	SetAvailability(ctx context.Context, chargePointID string, connectorIDs []int, availability, status string, ts time.Time) error
}

// Availability runs the ChangeAvailability state machine over the two-slot
// connector model: 0 is the whole station, 1 its sole connector.
type Availability struct {
	states    AvailabilityStore
	sessions  SessionActivity
	queue     *scheduler.Queue
	transport Transport

	settleDelay time.Duration
	interDelay  time.Duration

	log *logrus.Logger
	now func() time.Time
}

func NewAvailability(states AvailabilityStore, sessions SessionActivity, queue *scheduler.Queue, transport Transport,
	settleDelay, interDelay time.Duration, log *logrus.Logger) *Availability {
	return &Availability{
		states:      states,
		sessions:    sessions,
		queue:       queue,
		transport:   transport,
		settleDelay: settleDelay,
		interDelay:  interDelay,
		log:         log,
		now:         time.Now,
	}
}

// ChangeAvailability returns Accepted, Rejected or Scheduled. Scheduled means
// a transaction blocks the change; nothing durable retries it later.
func (a *Availability) ChangeAvailability(ctx context.Context, chargePointID string, req *core.ChangeAvailabilityRequest) core.AvailabilityStatus {
	if req.ConnectorId < 0 || req.ConnectorId > 1 {
		a.logFor(chargePointID).Infof("rejected: connector %d outside supported range", req.ConnectorId)
		return core.AvailabilityStatusRejected
	}

	targets := []int{req.ConnectorId}
	if req.ConnectorId == 0 {
		targets = []int{0, 1}
	}

	if containsConnector(targets, 1) {
		active, err := a.sessions.HasActiveSession(ctx, chargePointID, 1)
		if err != nil {
			a.logFor(chargePointID).Errorf("active session check: %v", err)
			return core.AvailabilityStatusRejected
		}
		if active {
			a.logFor(chargePointID).Info("scheduled: transaction in progress on connector 1")
			return core.AvailabilityStatusScheduled
		}
	}

	requested := string(req.Type)
	alreadyThere := true
	for _, connectorID := range targets {
		latest, err := a.states.Latest(ctx, chargePointID, connectorID)
		if err != nil {
			a.logFor(chargePointID).Errorf("connector state lookup: %v", err)
			return core.AvailabilityStatusRejected
		}
		if latest == nil || latest.Availability != requested {
			alreadyThere = false
			break
		}
	}
	if alreadyThere {
		a.logFor(chargePointID).Infof("accepted: already %v", req.Type)
		return core.AvailabilityStatusAccepted
	}

	status := core.ChargePointStatusAvailable
	info := "Connector set to operative"
	if req.Type == core.AvailabilityTypeInoperative {
		status = core.ChargePointStatusUnavailable
		info = "Connector set to inoperative"
	}

	if err := a.states.SetAvailability(ctx, chargePointID, targets, requested, string(status), a.now().UTC()); err != nil {
		a.logFor(chargePointID).Errorf("persist availability: %v", err)
		return core.AvailabilityStatusRejected
	}

	a.queue.Go(fmt.Sprintf("availability %s %v", chargePointID, req.Type), func(ctx context.Context) error {
		if err := a.queue.Wait(ctx, a.settleDelay); err != nil {
			return err
		}
		for i, connectorID := range targets {
			if i > 0 {
				if err := a.queue.Wait(ctx, a.interDelay); err != nil {
					return err
				}
			}
			_, err := a.transport.StatusNotification(ctx, chargePointID, &core.StatusNotificationRequest{
				ConnectorId: connectorID,
				ErrorCode:   core.NoError,
				Status:      status,
				Info:        info,
				Timestamp:   types.NewDateTime(a.now()),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	a.logFor(chargePointID).Infof("accepted: connectors %v now %v", targets, req.Type)
	return core.AvailabilityStatusAccepted
}

func containsConnector(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (a *Availability) logFor(chargePointID string) *logrus.Entry {
	return a.log.WithFields(logrus.Fields{"client": chargePointID, "message": core.ChangeAvailabilityFeatureName})
}
