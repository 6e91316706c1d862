package services

import (
	"context"
	"time"

	"csms/internal/models"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

type IdTagStore interface {
	GetByTag(ctx context.Context, tag string) (*models.IdTag, error)
}

// Authorization resolves a credential to an authorization decision. It has no
// side effects and fails closed: any store problem reads as Invalid.
type Authorization struct {
	tags IdTagStore
	log  *logrus.Logger
	now  func() time.Time
}

func NewAuthorization(tags IdTagStore, log *logrus.Logger) *Authorization {
	return &Authorization{tags: tags, log: log, now: time.Now}
}

func (a *Authorization) Resolve(ctx context.Context, idTag string) *types.IdTagInfo {
	tag, err := a.tags.GetByTag(ctx, idTag)
	if err != nil {
		a.log.WithField("idTag", idTag).Errorf("credential lookup failed: %v", err)
		return types.NewIdTagInfo(types.AuthorizationStatusInvalid)
	}
	if tag == nil {
		a.log.WithField("idTag", idTag).Info("unknown credential")
		return types.NewIdTagInfo(types.AuthorizationStatusInvalid)
	}

	// An elapsed expiry overrides whatever status the tag carries, and the
	// expiry is echoed back.
	if tag.ExpiryDate != nil && tag.ExpiryDate.Before(a.now()) {
		info := types.NewIdTagInfo(types.AuthorizationStatusExpired)
		info.ExpiryDate = types.NewDateTime(*tag.ExpiryDate)
		return info
	}

	info := types.NewIdTagInfo(types.AuthorizationStatus(tag.Status))
	if tag.ExpiryDate != nil {
		info.ExpiryDate = types.NewDateTime(*tag.ExpiryDate)
	}
	if tag.ParentIdTag != nil {
		info.ParentIdTag = *tag.ParentIdTag
	}
	return info
}

// Authorize handles the Authorize action.
func (a *Authorization) Authorize(ctx context.Context, chargePointID string, req *core.AuthorizeRequest) *core.AuthorizeConfirmation {
	return core.NewAuthorizationConfirmation(a.Resolve(ctx, req.IdTag))
}
