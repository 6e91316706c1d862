package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"csms/internal/models"
	"csms/internal/scheduler"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
)

type availabilityFixture struct {
	avail     *Availability
	states    *fakeStates
	sessions  *fakeSessions
	transport *fakeTransport
	queue     *scheduler.Queue
}

func newAvailabilityFixture(t *testing.T) *availabilityFixture {
	t.Helper()
	log := testLogger()
	f := &availabilityFixture{
		states:    newFakeStates(),
		sessions:  &fakeSessions{},
		transport: &fakeTransport{},
		queue:     scheduler.New(log),
	}
	f.queue.SetTimer(immediateTimer)
	t.Cleanup(f.queue.Shutdown)

	f.avail = NewAvailability(f.states, wrapActivity{f.sessions}, f.queue, f.transport,
		time.Millisecond, time.Millisecond, log)
	return f
}

// wrapActivity narrows fakeSessions to the single method Availability needs.
type wrapActivity struct{ s *fakeSessions }

func (w wrapActivity) HasActiveSession(ctx context.Context, chargePointID string, connectorID int) (bool, error) {
	return w.s.HasActiveOnConnector(ctx, chargePointID, connectorID)
}

func TestChangeAvailabilityRejectsUnknownConnector(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 2,
		Type:        core.AvailabilityTypeInoperative,
	})
	if got != core.AvailabilityStatusRejected {
		t.Errorf("got %v, want Rejected for connector 2", got)
	}
}

// Note on concurrency: ChangeAvailability reads the latest connector state and
// writes separately, with no per-station serialization. Two concurrent calls
// for the same charge point can interleave between the read and the write.
// The tests below exercise single-caller semantics only; callers needing
// stronger guarantees must serialize per charge point upstream.

func TestChangeAvailabilityScheduledDuringTransaction(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)
	f.states.put("CP-1", 1, string(core.ChargePointStatusCharging), "Operative")
	_, _ = f.sessions.Create(context.Background(), models.Session{
		TransactionID: 1,
		ChargePointID: "CP-1",
		ConnectorID:   1,
		Status:        models.SessionActive,
	})

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 1,
		Type:        core.AvailabilityTypeInoperative,
	})
	if got != core.AvailabilityStatusScheduled {
		t.Fatalf("got %v, want Scheduled", got)
	}
	if len(f.states.setCalls) != 0 {
		t.Errorf("availability was written %d times, want untouched until the transaction ends", len(f.states.setCalls))
	}
	f.queue.Drain()
	if calls := f.transport.snapshot(); len(calls) != 0 {
		t.Errorf("transport calls = %d, want none for a scheduled change", len(calls))
	}
}

func TestChangeAvailabilityStationWideTargetsBothConnectors(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)
	f.states.put("CP-1", 0, string(core.ChargePointStatusAvailable), "Operative")
	f.states.put("CP-1", 1, string(core.ChargePointStatusAvailable), "Operative")

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 0,
		Type:        core.AvailabilityTypeInoperative,
	})
	if got != core.AvailabilityStatusAccepted {
		t.Fatalf("got %v, want Accepted", got)
	}
	if len(f.states.setCalls) != 1 || len(f.states.setCalls[0]) != 2 {
		t.Fatalf("setCalls = %v, want one write covering connectors 0 and 1", f.states.setCalls)
	}

	f.queue.Drain()
	calls := f.transport.snapshot()
	if len(calls) != 2 {
		t.Fatalf("transport calls = %d, want one status per connector", len(calls))
	}
	for i, want := range []int{0, 1} {
		st := calls[i].status
		if st == nil || st.ConnectorId != want || st.Status != core.ChargePointStatusUnavailable {
			t.Errorf("call %d = %+v, want connector %d Unavailable", i, st, want)
		}
	}
}

func TestChangeAvailabilityBackToOperative(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)
	f.states.put("CP-1", 1, string(core.ChargePointStatusUnavailable), "Inoperative")

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 1,
		Type:        core.AvailabilityTypeOperative,
	})
	if got != core.AvailabilityStatusAccepted {
		t.Fatalf("got %v, want Accepted", got)
	}
	f.queue.Drain()
	calls := f.transport.snapshot()
	if len(calls) != 1 || calls[0].status == nil || calls[0].status.Status != core.ChargePointStatusAvailable {
		t.Errorf("calls = %+v, want a single Available notification", calls)
	}
}

func TestChangeAvailabilityNoOpWhenAlreadyThere(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)
	f.states.put("CP-1", 1, string(core.ChargePointStatusUnavailable), "Inoperative")

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 1,
		Type:        core.AvailabilityTypeInoperative,
	})
	if got != core.AvailabilityStatusAccepted {
		t.Fatalf("got %v, want Accepted", got)
	}
	if len(f.states.setCalls) != 0 {
		t.Errorf("setCalls = %v, want no write", f.states.setCalls)
	}
	f.queue.Drain()
	if calls := f.transport.snapshot(); len(calls) != 0 {
		t.Errorf("transport calls = %d, want none", len(calls))
	}
}

func TestChangeAvailabilityPersistFailureRejected(t *testing.T) {
	t.Parallel()
	f := newAvailabilityFixture(t)
	f.states.setErr = errors.New("write failed")

	got := f.avail.ChangeAvailability(context.Background(), "CP-1", &core.ChangeAvailabilityRequest{
		ConnectorId: 1,
		Type:        core.AvailabilityTypeInoperative,
	})
	if got != core.AvailabilityStatusRejected {
		t.Errorf("got %v, want Rejected when the write fails", got)
	}
}
