package repo

import (
	"context"

	"csms/internal/db"
	"csms/internal/models"
)

type MeterValuesRepo struct{ db *db.DB }

func NewMeterValuesRepo(d *db.DB) *MeterValuesRepo { return &MeterValuesRepo{db: d} }

// InsertBatch persists one batch of readings as a single unit of work.
func (r *MeterValuesRepo) InsertBatch(ctx context.Context, values []models.MeterValue) error {
	if len(values) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(q db.Querier) error {
		for _, v := range values {
			_, err := q.Exec(ctx, `
				insert into meter_values (session_id, ts, value, unit, measurand, phase, location, context, format)
				values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, v.SessionID, v.Timestamp, v.Value, v.Unit, v.Measurand, v.Phase, v.Location, v.Context, v.Format)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MeterValuesRepo) ListBySession(ctx context.Context, sessionID int64, limit int) ([]models.MeterValue, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := r.db.Pool.Query(ctx, `
		select id, session_id, ts, value, unit, measurand, phase, location, context, format, created_at
		from meter_values where session_id=$1
		order by ts asc limit $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MeterValue
	for rows.Next() {
		var v models.MeterValue
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Timestamp, &v.Value, &v.Unit, &v.Measurand,
			&v.Phase, &v.Location, &v.Context, &v.Format, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
