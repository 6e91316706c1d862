package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"csms/internal/models"
	"csms/internal/notifier"
	"csms/internal/scheduler"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

type SessionStore interface {
	SessionFinder
	AllocateTransactionID(ctx context.Context) (int, error)
	Create(ctx context.Context, s models.Session) (int64, error)
	FindActive(ctx context.Context, chargePointID string, transactionID int) (*models.Session, error)
	HasActiveOnConnector(ctx context.Context, chargePointID string, connectorID int) (bool, error)
	Complete(ctx context.Context, sessionID int64, meterStop int, stoppedAt time.Time, reason string, energyKwh *float64) error
}

type ConnectorStateReader interface {
	Latest(ctx context.Context, chargePointID string, connectorID int) (*models.ConnectorState, error)
}

// Ledger owns transaction-id allocation and the session lifecycle.
type Ledger struct {
	auth      *Authorization
	telemetry *Telemetry
	sessions  SessionStore
	tags      IdTagStore
	points    ChargePointStore
	states    ConnectorStateReader
	queue     *scheduler.Queue
	transport Transport

	settleDelay time.Duration
	interDelay  time.Duration

	events chan<- notifier.Notification
	log    *logrus.Logger
	now    func() time.Time

	// Synthetic consumption added to meter start when a remote stop has to
	// invent a plausible meter reading: 1-5 kWh.
	syntheticWh func() int
}

func NewLedger(auth *Authorization, telemetry *Telemetry, sessions SessionStore, tags IdTagStore,
	points ChargePointStore, states ConnectorStateReader, queue *scheduler.Queue, transport Transport,
	settleDelay, interDelay time.Duration, events chan<- notifier.Notification, log *logrus.Logger) *Ledger {
	return &Ledger{
		auth:        auth,
		telemetry:   telemetry,
		sessions:    sessions,
		tags:        tags,
		points:      points,
		states:      states,
		queue:       queue,
		transport:   transport,
		settleDelay: settleDelay,
		interDelay:  interDelay,
		events:      events,
		log:         log,
		now:         time.Now,
		syntheticWh: func() int { return 1000 + rand.Intn(4001) },
	}
}

// StartTransaction authorizes the credential and, when accepted, opens a new
// session under a freshly allocated transaction id. Transaction id 0 means no
// session was created.
func (l *Ledger) StartTransaction(ctx context.Context, chargePointID string, req *core.StartTransactionRequest) *core.StartTransactionConfirmation {
	info := l.auth.Resolve(ctx, req.IdTag)
	if info.Status != types.AuthorizationStatusAccepted {
		l.logFor(chargePointID, core.StartTransactionFeatureName).
			Infof("start rejected for %v: %v", req.IdTag, info.Status)
		return core.NewStartTransactionConfirmation(info, 0)
	}

	// The credential can vanish between resolution and the session write;
	// demote to Invalid rather than creating an unowned session.
	tag, err := l.tags.GetByTag(ctx, req.IdTag)
	if err != nil || tag == nil {
		l.logFor(chargePointID, core.StartTransactionFeatureName).
			Errorf("credential %v disappeared before session create: %v", req.IdTag, err)
		return core.NewStartTransactionConfirmation(types.NewIdTagInfo(types.AuthorizationStatusInvalid), 0)
	}

	transactionID, err := l.sessions.AllocateTransactionID(ctx)
	if err != nil {
		l.logFor(chargePointID, core.StartTransactionFeatureName).Errorf("allocate transaction id: %v", err)
		return core.NewStartTransactionConfirmation(types.NewIdTagInfo(types.AuthorizationStatusInvalid), 0)
	}

	startedAt := l.now().UTC()
	if req.Timestamp != nil {
		startedAt = req.Timestamp.Time
	}
	meterStart := req.MeterStart
	_, err = l.sessions.Create(ctx, models.Session{
		TransactionID: transactionID,
		ChargePointID: chargePointID,
		IdTagID:       tag.ID,
		ConnectorID:   req.ConnectorId,
		MeterStart:    &meterStart,
		StartedAt:     startedAt,
		Status:        models.SessionActive,
		ReservationID: req.ReservationId,
	})
	if err != nil {
		l.logFor(chargePointID, core.StartTransactionFeatureName).Errorf("create session: %v", err)
		return core.NewStartTransactionConfirmation(types.NewIdTagInfo(types.AuthorizationStatusInvalid), 0)
	}

	notifier.Emit(l.events, "start.transaction", map[string]any{
		"chargePointId": chargePointID,
		"transactionId": transactionID,
		"connectorId":   req.ConnectorId,
		"idTag":         req.IdTag,
	})
	return core.NewStartTransactionConfirmation(info, transactionID)
}

// StopTransaction closes the session for a transaction id. The charge point's
// stop must always be acknowledged, so an unknown transaction or a failed
// write only logs.
func (l *Ledger) StopTransaction(ctx context.Context, chargePointID string, req *core.StopTransactionRequest) *core.StopTransactionConfirmation {
	conf := core.NewStopTransactionConfirmation()

	sess, err := l.sessions.FindByTransaction(ctx, req.TransactionId)
	if err != nil {
		l.logFor(chargePointID, core.StopTransactionFeatureName).Errorf("session lookup: %v", err)
	} else if sess == nil {
		l.logFor(chargePointID, core.StopTransactionFeatureName).
			Errorf("transaction %d not found, acknowledging anyway", req.TransactionId)
	} else {
		stoppedAt := l.now().UTC()
		if req.Timestamp != nil {
			stoppedAt = req.Timestamp.Time
		}
		reason := string(req.Reason)
		if reason == "" {
			reason = string(core.ReasonLocal)
		}
		var energy *float64
		if sess.MeterStart != nil {
			// Wh to kWh. Deliberately unclamped: a meter that ran backwards
			// shows up as negative energy rather than being papered over.
			e := float64(req.MeterStop-*sess.MeterStart) / 1000.0
			energy = &e
		}
		if err := l.sessions.Complete(ctx, sess.ID, req.MeterStop, stoppedAt, reason, energy); err != nil {
			l.logFor(chargePointID, core.StopTransactionFeatureName).Errorf("complete session: %v", err)
		}
	}

	if len(req.TransactionData) > 0 {
		txID := req.TransactionId
		if err := l.telemetry.Ingest(ctx, chargePointID, &txID, req.TransactionData, types.ReadingContextTransactionEnd); err != nil {
			l.logFor(chargePointID, core.StopTransactionFeatureName).Errorf("store transaction data: %v", err)
		}
	}

	if req.IdTag != "" {
		conf.IdTagInfo = l.auth.Resolve(ctx, req.IdTag)
	}

	notifier.Emit(l.events, "stop.transaction", map[string]any{
		"chargePointId": chargePointID,
		"transactionId": req.TransactionId,
		"meterStop":     req.MeterStop,
	})
	return conf
}

// RemoteStart decides whether a remotely requested start may proceed. No free
// connector is searched when none is named; an online station is enough.
func (l *Ledger) RemoteStart(ctx context.Context, chargePointID string, req *core.RemoteStartTransactionRequest) types.RemoteStartStopStatus {
	info := l.auth.Resolve(ctx, req.IdTag)
	if info.Status != types.AuthorizationStatusAccepted {
		l.logFor(chargePointID, core.RemoteStartTransactionFeatureName).
			Infof("remote start rejected for %v: %v", req.IdTag, info.Status)
		return types.RemoteStartStopStatusRejected
	}

	cp, err := l.points.Get(ctx, chargePointID)
	if err != nil || cp == nil || !cp.IsOnline {
		l.logFor(chargePointID, core.RemoteStartTransactionFeatureName).Warn("remote start rejected: charge point offline")
		return types.RemoteStartStopStatusRejected
	}

	if req.ConnectorId != nil {
		latest, err := l.states.Latest(ctx, chargePointID, *req.ConnectorId)
		if err != nil {
			l.logFor(chargePointID, core.RemoteStartTransactionFeatureName).Errorf("connector state lookup: %v", err)
			return types.RemoteStartStopStatusRejected
		}
		if latest != nil &&
			latest.Status != string(core.ChargePointStatusAvailable) &&
			latest.Status != string(core.ChargePointStatusPreparing) {
			l.logFor(chargePointID, core.RemoteStartTransactionFeatureName).
				Infof("remote start rejected: connector %d is %v", *req.ConnectorId, latest.Status)
			return types.RemoteStartStopStatusRejected
		}
	}

	if req.ChargingProfile != nil {
		l.logFor(chargePointID, core.RemoteStartTransactionFeatureName).
			Infof("charging profile %d (%v) supplied with remote start",
				req.ChargingProfile.ChargingProfileId, req.ChargingProfile.ChargingProfilePurpose)
	}
	return types.RemoteStartStopStatusAccepted
}

// RemoteStop accepts iff the transaction is active on this charge point, and
// schedules the detached stop sequence: a synthesized StopTransaction after
// the settle delay, then a StatusNotification marking the connector free.
func (l *Ledger) RemoteStop(ctx context.Context, chargePointID string, transactionID int) types.RemoteStartStopStatus {
	sess, err := l.sessions.FindActive(ctx, chargePointID, transactionID)
	if err != nil {
		l.logFor(chargePointID, core.RemoteStopTransactionFeatureName).Errorf("session lookup: %v", err)
		return types.RemoteStartStopStatusRejected
	}
	if sess == nil {
		l.logFor(chargePointID, core.RemoteStopTransactionFeatureName).
			Infof("remote stop rejected: no active transaction %d", transactionID)
		return types.RemoteStartStopStatusRejected
	}

	meterStart := 0
	if sess.MeterStart != nil {
		meterStart = *sess.MeterStart
	}
	connectorID := sess.ConnectorID

	l.queue.Go(fmt.Sprintf("remote-stop %s/%d", chargePointID, transactionID), func(ctx context.Context) error {
		if err := l.queue.Wait(ctx, l.settleDelay); err != nil {
			return err
		}
		meterStop := meterStart + l.syntheticWh()
		_, err := l.transport.StopTransaction(ctx, chargePointID, &core.StopTransactionRequest{
			TransactionId: transactionID,
			MeterStop:     meterStop,
			Timestamp:     types.NewDateTime(l.now()),
			Reason:        core.ReasonRemote,
		})
		if err != nil {
			return err
		}
		if err := l.queue.Wait(ctx, l.interDelay); err != nil {
			return err
		}
		_, err = l.transport.StatusNotification(ctx, chargePointID, &core.StatusNotificationRequest{
			ConnectorId: connectorID,
			ErrorCode:   core.NoError,
			Status:      core.ChargePointStatusAvailable,
			Info:        "Transaction stopped remotely",
			Timestamp:   types.NewDateTime(l.now()),
		})
		return err
	})
	return types.RemoteStartStopStatusAccepted
}

// HasActiveSession reports whether a connector is mid-transaction.
func (l *Ledger) HasActiveSession(ctx context.Context, chargePointID string, connectorID int) (bool, error) {
	return l.sessions.HasActiveOnConnector(ctx, chargePointID, connectorID)
}

func (l *Ledger) logFor(chargePointID, feature string) *logrus.Entry {
	return l.log.WithFields(logrus.Fields{"client": chargePointID, "message": feature})
}
