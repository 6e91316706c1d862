package repo

import (
	"context"
	"errors"
	"time"

	"csms/internal/db"
	"csms/internal/models"

	"github.com/jackc/pgx/v5"
)

type SessionsRepo struct{ db *db.DB }

func NewSessionsRepo(d *db.DB) *SessionsRepo { return &SessionsRepo{db: d} }

// AllocateTransactionID draws the next id from a store-owned sequence, so
// concurrent starts can never collide.
func (r *SessionsRepo) AllocateTransactionID(ctx context.Context) (int, error) {
	var id int
	err := r.db.Pool.QueryRow(ctx, `select nextval('transaction_id_seq')::int`).Scan(&id)
	return id, err
}

func (r *SessionsRepo) Create(ctx context.Context, s models.Session) (int64, error) {
	row := r.db.Pool.QueryRow(ctx, `
		insert into sessions (transaction_id, charge_point_id, id_tag_id, connector_id, meter_start,
		                      started_at, status, reservation_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		returning id
	`, s.TransactionID, s.ChargePointID, s.IdTagID, s.ConnectorID, s.MeterStart,
		s.StartedAt, s.Status, s.ReservationID)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// FindByTransaction looks a session up by transaction id alone. The id
// namespace is global, not charge-point-scoped.
func (r *SessionsRepo) FindByTransaction(ctx context.Context, transactionID int) (*models.Session, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, sessionColumns+`where transaction_id=$1`, transactionID))
}

func (r *SessionsRepo) FindActive(ctx context.Context, chargePointID string, transactionID int) (*models.Session, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		sessionColumns+`where charge_point_id=$1 and transaction_id=$2 and status=$3`,
		chargePointID, transactionID, models.SessionActive))
}

func (r *SessionsRepo) HasActiveOnConnector(ctx context.Context, chargePointID string, connectorID int) (bool, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		select count(*) from sessions
		where charge_point_id=$1 and connector_id=$2 and status=$3
	`, chargePointID, connectorID, models.SessionActive).Scan(&n)
	return n > 0, err
}

func (r *SessionsRepo) Complete(ctx context.Context, sessionID int64, meterStop int, stoppedAt time.Time, reason string, energyKwh *float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		update sessions set meter_stop=$2, stopped_at=$3, status=$4, stop_reason=$5,
		  energy_kwh=coalesce($6, energy_kwh), updated_at=now()
		where id=$1
	`, sessionID, meterStop, stoppedAt, models.SessionCompleted, reason, energyKwh)
	return err
}

func (r *SessionsRepo) ListByChargePoint(ctx context.Context, chargePointID string, limit int) ([]models.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx,
		sessionColumns+`where charge_point_id=$1 order by started_at desc limit $2`,
		chargePointID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.ChargePointID, &s.IdTagID, &s.ConnectorID,
			&s.MeterStart, &s.MeterStop, &s.StartedAt, &s.StoppedAt, &s.Status,
			&s.StopReason, &s.EnergyKwh, &s.ReservationID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const sessionColumns = `
	select id, transaction_id, charge_point_id, id_tag_id, connector_id, meter_start, meter_stop,
	       started_at, stopped_at, status, stop_reason, energy_kwh, reservation_id, created_at, updated_at
	from sessions
`

func (r *SessionsRepo) scanOne(row pgx.Row) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.TransactionID, &s.ChargePointID, &s.IdTagID, &s.ConnectorID,
		&s.MeterStart, &s.MeterStop, &s.StartedAt, &s.StoppedAt, &s.Status,
		&s.StopReason, &s.EnergyKwh, &s.ReservationID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
