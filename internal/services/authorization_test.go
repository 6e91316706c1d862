package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"csms/internal/models"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

func TestResolveUnknownTag(t *testing.T) {
	t.Parallel()
	a := NewAuthorization(newFakeTags(), testLogger())

	info := a.Resolve(context.Background(), "NOPE")
	if info.Status != types.AuthorizationStatusInvalid {
		t.Errorf("status = %v, want Invalid", info.Status)
	}
}

func TestResolveStoreErrorFailsClosed(t *testing.T) {
	t.Parallel()
	tags := newFakeTags()
	tags.err = errors.New("connection refused")
	a := NewAuthorization(tags, testLogger())

	info := a.Resolve(context.Background(), "TAG-1")
	if info.Status != types.AuthorizationStatusInvalid {
		t.Errorf("status = %v, want Invalid on store error", info.Status)
	}
}

func TestResolvePassesThroughStatus(t *testing.T) {
	t.Parallel()
	parent := "FLEET-1"
	a := NewAuthorization(newFakeTags(
		models.IdTag{Tag: "OK", Status: string(types.AuthorizationStatusAccepted), ParentIdTag: &parent},
		models.IdTag{Tag: "BLOCKED", Status: string(types.AuthorizationStatusBlocked)},
	), testLogger())

	info := a.Resolve(context.Background(), "OK")
	if info.Status != types.AuthorizationStatusAccepted {
		t.Errorf("status = %v, want Accepted", info.Status)
	}
	if info.ParentIdTag != "FLEET-1" {
		t.Errorf("parentIdTag = %q, want FLEET-1", info.ParentIdTag)
	}

	info = a.Resolve(context.Background(), "BLOCKED")
	if info.Status != types.AuthorizationStatusBlocked {
		t.Errorf("status = %v, want Blocked", info.Status)
	}
}

func TestResolveExpiredOverridesStatus(t *testing.T) {
	t.Parallel()
	expiry := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAuthorization(newFakeTags(
		models.IdTag{Tag: "OLD", Status: string(types.AuthorizationStatusAccepted), ExpiryDate: &expiry},
	), testLogger())
	a.now = func() time.Time { return expiry.Add(24 * time.Hour) }

	info := a.Resolve(context.Background(), "OLD")
	if info.Status != types.AuthorizationStatusExpired {
		t.Fatalf("status = %v, want Expired", info.Status)
	}
	if info.ExpiryDate == nil || !info.ExpiryDate.Time.Equal(expiry) {
		t.Errorf("expiryDate = %v, want echoed %v", info.ExpiryDate, expiry)
	}
}

func TestResolveFutureExpiryKept(t *testing.T) {
	t.Parallel()
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAuthorization(newFakeTags(
		models.IdTag{Tag: "FRESH", Status: string(types.AuthorizationStatusAccepted), ExpiryDate: &expiry},
	), testLogger())
	a.now = func() time.Time { return expiry.Add(-24 * time.Hour) }

	info := a.Resolve(context.Background(), "FRESH")
	if info.Status != types.AuthorizationStatusAccepted {
		t.Errorf("status = %v, want Accepted", info.Status)
	}
	if info.ExpiryDate == nil || !info.ExpiryDate.Time.Equal(expiry) {
		t.Errorf("expiryDate = %v, want %v", info.ExpiryDate, expiry)
	}
}

func TestAuthorizeWrapsResolution(t *testing.T) {
	t.Parallel()
	a := NewAuthorization(newFakeTags(
		models.IdTag{Tag: "OK", Status: string(types.AuthorizationStatusAccepted)},
	), testLogger())

	conf := a.Authorize(context.Background(), "CP-1", &core.AuthorizeRequest{IdTag: "OK"})
	if conf.IdTagInfo == nil || conf.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		t.Errorf("confirmation = %+v, want Accepted idTagInfo", conf)
	}
}
