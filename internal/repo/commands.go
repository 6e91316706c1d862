package repo

import (
	"context"

	"csms/internal/db"
	"csms/internal/models"
)

// CommandsRepo is the audit trail for outbound charge-point commands.
type CommandsRepo struct{ db *db.DB }

func NewCommandsRepo(d *db.DB) *CommandsRepo { return &CommandsRepo{db: d} }

func (r *CommandsRepo) Create(ctx context.Context, c models.Command) (string, error) {
	row := r.db.Pool.QueryRow(ctx, `
		insert into outbound_commands (charge_point_id, action, payload, status)
		values ($1,$2,$3,$4)
		returning command_id
	`, c.ChargePointID, c.Action, c.PayloadJSON, c.Status)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *CommandsRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `update outbound_commands set status='Sent', updated_at=now() where command_id=$1`, id)
	return err
}

func (r *CommandsRepo) MarkAcked(ctx context.Context, id string, response []byte) error {
	_, err := r.db.Pool.Exec(ctx, `update outbound_commands set status='Acked', response=$2, updated_at=now() where command_id=$1`, id, response)
	return err
}

func (r *CommandsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx, `update outbound_commands set status='Failed', error=$2, updated_at=now() where command_id=$1`, id, errMsg)
	return err
}
