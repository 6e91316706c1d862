package repo

import (
	"context"
	"time"

	"csms/internal/db"
)

// MessagesRepo appends every decoded inbound action, raw, for audit.
type MessagesRepo struct{ db *db.DB }

func NewMessagesRepo(d *db.DB) *MessagesRepo { return &MessagesRepo{db: d} }

func (r *MessagesRepo) InsertRaw(ctx context.Context, chargePointID, action string, ts time.Time, payload []byte) error {
	_, err := r.db.Pool.Exec(ctx, `
		insert into inbound_messages (charge_point_id, action, ts, payload)
		values ($1,$2,$3,$4)
	`, chargePointID, action, ts, payload)
	return err
}
