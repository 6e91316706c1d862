package services

import (
	"context"
	"io"
	"sync"
	"time"

	"csms/internal/models"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeTags struct {
	mu   sync.Mutex
	tags map[string]models.IdTag
	err  error
}

func newFakeTags(tags ...models.IdTag) *fakeTags {
	f := &fakeTags{tags: map[string]models.IdTag{}}
	for _, t := range tags {
		f.tags[t.Tag] = t
	}
	return f
}

func (f *fakeTags) GetByTag(_ context.Context, tag string) (*models.IdTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tags[tag]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	nextTxID int
	nextID   int64
	sessions []models.Session

	allocateErr error
	createErr   error
	findErr     error
	completeErr error

	completed []completedCall
}

type completedCall struct {
	sessionID int64
	meterStop int
	reason    string
	energyKwh *float64
}

func (f *fakeSessions) AllocateTransactionID(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocateErr != nil {
		return 0, f.allocateErr
	}
	f.nextTxID++
	return f.nextTxID, nil
}

func (f *fakeSessions) Create(_ context.Context, s models.Session) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	s.ID = f.nextID
	f.sessions = append(f.sessions, s)
	return s.ID, nil
}

func (f *fakeSessions) FindByTransaction(_ context.Context, transactionID int) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i := range f.sessions {
		if f.sessions[i].TransactionID == transactionID {
			s := f.sessions[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) FindActive(_ context.Context, chargePointID string, transactionID int) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i := range f.sessions {
		s := f.sessions[i]
		if s.TransactionID == transactionID && s.ChargePointID == chargePointID && s.Status == models.SessionActive {
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) HasActiveOnConnector(_ context.Context, chargePointID string, connectorID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return false, f.findErr
	}
	for _, s := range f.sessions {
		if s.ChargePointID == chargePointID && s.ConnectorID == connectorID && s.Status == models.SessionActive {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessions) Complete(_ context.Context, sessionID int64, meterStop int, _ time.Time, reason string, energyKwh *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	for i := range f.sessions {
		if f.sessions[i].ID == sessionID {
			f.sessions[i].Status = models.SessionCompleted
			f.sessions[i].MeterStop = &meterStop
			f.sessions[i].StopReason = &reason
			f.sessions[i].EnergyKwh = energyKwh
		}
	}
	f.completed = append(f.completed, completedCall{sessionID, meterStop, reason, energyKwh})
	return nil
}

type fakeMeters struct {
	mu   sync.Mutex
	rows []models.MeterValue
	err  error
}

func (f *fakeMeters) InsertBatch(_ context.Context, values []models.MeterValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, values...)
	return nil
}

type fakePoints struct {
	mu     sync.Mutex
	points map[string]models.ChargePoint
	err    error

	lastSeen map[string]time.Time
	statuses map[string]string
}

func newFakePoints(points ...models.ChargePoint) *fakePoints {
	f := &fakePoints{
		points:   map[string]models.ChargePoint{},
		lastSeen: map[string]time.Time{},
		statuses: map[string]string{},
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return f
}

func (f *fakePoints) Upsert(_ context.Context, cp models.ChargePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points[cp.ID] = cp
	return nil
}

func (f *fakePoints) Get(_ context.Context, id string) (*models.ChargePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.points[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePoints) TouchLastSeen(_ context.Context, id string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.lastSeen[id] = t
	return nil
}

func (f *fakePoints) SetStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses[id] = status
	return nil
}

type stateKey struct {
	chargePointID string
	connectorID   int
}

type fakeStates struct {
	mu     sync.Mutex
	states map[stateKey]models.ConnectorState

	latestErr error
	setErr    error

	setCalls [][]int
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: map[stateKey]models.ConnectorState{}}
}

func (f *fakeStates) put(chargePointID string, connectorID int, status, availability string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[stateKey{chargePointID, connectorID}] = models.ConnectorState{
		ChargePointID: chargePointID,
		ConnectorID:   connectorID,
		Status:        status,
		Availability:  availability,
	}
}

func (f *fakeStates) Latest(_ context.Context, chargePointID string, connectorID int) (*models.ConnectorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	st, ok := f.states[stateKey{chargePointID, connectorID}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (f *fakeStates) SetAvailability(_ context.Context, chargePointID string, connectorIDs []int, availability, status string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, connectorIDs)
	for _, id := range connectorIDs {
		st := f.states[stateKey{chargePointID, id}]
		st.ChargePointID = chargePointID
		st.ConnectorID = id
		st.Availability = availability
		st.Status = status
		f.states[stateKey{chargePointID, id}] = st
	}
	return nil
}

type fakeStatuses struct {
	mu       sync.Mutex
	appended []models.ConnectorStatus
	err      error
}

func (f *fakeStatuses) Append(_ context.Context, st models.ConnectorStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, st)
	return nil
}

type transportCall struct {
	chargePointID string
	stop          *core.StopTransactionRequest
	status        *core.StatusNotificationRequest
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []transportCall
	err   error
}

func (f *fakeTransport) StopTransaction(_ context.Context, chargePointID string, req *core.StopTransactionRequest) (*core.StopTransactionConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, transportCall{chargePointID: chargePointID, stop: req})
	return core.NewStopTransactionConfirmation(), nil
}

func (f *fakeTransport) StatusNotification(_ context.Context, chargePointID string, req *core.StatusNotificationRequest) (*core.StatusNotificationConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, transportCall{chargePointID: chargePointID, status: req})
	return core.NewStatusNotificationConfirmation(), nil
}

func (f *fakeTransport) snapshot() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transportCall, len(f.calls))
	copy(out, f.calls)
	return out
}
