package repo

import (
	"context"
	"errors"
	"time"

	"csms/internal/db"
	"csms/internal/models"

	"github.com/jackc/pgx/v5"
)

// StatusesRepo owns the append-only connector_statuses log and the
// connector_state projection that serves "latest" reads.
type StatusesRepo struct{ db *db.DB }

func NewStatusesRepo(d *db.DB) *StatusesRepo { return &StatusesRepo{db: d} }

func (r *StatusesRepo) Append(ctx context.Context, st models.ConnectorStatus) error {
	if st.Availability == "" {
		st.Availability = "Operative"
	}
	return r.db.WithTx(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `
			insert into connector_statuses (charge_point_id, connector_id, status, error_code, ts,
			                                info, vendor_id, vendor_error_code, availability)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, st.ChargePointID, st.ConnectorID, st.Status, st.ErrorCode, st.Timestamp,
			st.Info, st.VendorID, st.VendorErrorCode, st.Availability)
		if err != nil {
			return err
		}
		return upsertState(ctx, q, st.ChargePointID, st.ConnectorID, st.Status, st.ErrorCode, st.Availability)
	})
}

func (r *StatusesRepo) Latest(ctx context.Context, chargePointID string, connectorID int) (*models.ConnectorState, error) {
	row := r.db.Pool.QueryRow(ctx, `
		select charge_point_id, connector_id, status, error_code, availability, updated_at
		from connector_state where charge_point_id=$1 and connector_id=$2
	`, chargePointID, connectorID)

	var st models.ConnectorState
	if err := row.Scan(&st.ChargePointID, &st.ConnectorID, &st.Status, &st.ErrorCode, &st.Availability, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// SetAvailability flips the availability of the latest log row for each
// connector (inserting one if the connector never reported), and keeps the
// projection in step. One transaction for all target connectors.
func (r *StatusesRepo) SetAvailability(ctx context.Context, chargePointID string, connectorIDs []int, availability, status string, ts time.Time) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		for _, connectorID := range connectorIDs {
			tag, err := q.Exec(ctx, `
				update connector_statuses set availability=$3
				where id = (
				  select id from connector_statuses
				  where charge_point_id=$1 and connector_id=$2
				  order by created_at desc limit 1
				)
			`, chargePointID, connectorID, availability)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				_, err = q.Exec(ctx, `
					insert into connector_statuses (charge_point_id, connector_id, status, error_code, ts, availability)
					values ($1,$2,$3,'NoError',$4,$5)
				`, chargePointID, connectorID, status, ts, availability)
				if err != nil {
					return err
				}
			}
			// Only availability moves in the projection; the reported status is
			// whatever the connector last said, unless it never reported at all.
			_, err = q.Exec(ctx, `
				insert into connector_state (charge_point_id, connector_id, status, error_code, availability, updated_at)
				values ($1,$2,$3,'NoError',$4, now())
				on conflict (charge_point_id, connector_id) do update set
				  availability=excluded.availability,
				  updated_at=now()
			`, chargePointID, connectorID, status, availability)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *StatusesRepo) ListStates(ctx context.Context, chargePointID string) ([]models.ConnectorState, error) {
	rows, err := r.db.Pool.Query(ctx, `
		select charge_point_id, connector_id, status, error_code, availability, updated_at
		from connector_state where charge_point_id=$1
		order by connector_id asc
	`, chargePointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConnectorState
	for rows.Next() {
		var st models.ConnectorState
		if err := rows.Scan(&st.ChargePointID, &st.ConnectorID, &st.Status, &st.ErrorCode, &st.Availability, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func upsertState(ctx context.Context, q db.Querier, chargePointID string, connectorID int, status, errorCode, availability string) error {
	_, err := q.Exec(ctx, `
		insert into connector_state (charge_point_id, connector_id, status, error_code, availability, updated_at)
		values ($1,$2,$3,$4,$5, now())
		on conflict (charge_point_id, connector_id) do update set
		  status=excluded.status,
		  error_code=excluded.error_code,
		  availability=excluded.availability,
		  updated_at=now()
	`, chargePointID, connectorID, status, errorCode, availability)
	return err
}
