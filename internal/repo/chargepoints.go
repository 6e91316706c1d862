package repo

import (
	"context"
	"errors"
	"time"

	"csms/internal/db"
	"csms/internal/models"

	"github.com/jackc/pgx/v5"
)

type ChargePointsRepo struct{ db *db.DB }

func NewChargePointsRepo(d *db.DB) *ChargePointsRepo { return &ChargePointsRepo{db: d} }

func (r *ChargePointsRepo) Upsert(ctx context.Context, cp models.ChargePoint) error {
	_, err := r.db.Pool.Exec(ctx, `
		insert into charge_points (id, vendor, model, serial_number, box_serial_number, firmware_version,
		                           iccid, imsi, meter_type, meter_serial_number, is_online, last_seen_at, boot_status)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		on conflict (id) do update set
		  vendor=excluded.vendor,
		  model=excluded.model,
		  serial_number=excluded.serial_number,
		  box_serial_number=excluded.box_serial_number,
		  firmware_version=excluded.firmware_version,
		  iccid=excluded.iccid,
		  imsi=excluded.imsi,
		  meter_type=excluded.meter_type,
		  meter_serial_number=excluded.meter_serial_number,
		  is_online=excluded.is_online,
		  last_seen_at=excluded.last_seen_at,
		  boot_status=excluded.boot_status,
		  updated_at=now()
	`, cp.ID, cp.Vendor, cp.Model, cp.SerialNumber, cp.BoxSerialNumber, cp.FirmwareVersion,
		cp.Iccid, cp.Imsi, cp.MeterType, cp.MeterSerialNumber, cp.IsOnline, cp.LastSeenAt, cp.BootStatus)
	return err
}

func (r *ChargePointsRepo) Get(ctx context.Context, id string) (*models.ChargePoint, error) {
	row := r.db.Pool.QueryRow(ctx, `
		select id, coalesce(vendor,''), coalesce(model,''), coalesce(serial_number,''), coalesce(box_serial_number,''),
		       coalesce(firmware_version,''), coalesce(iccid,''), coalesce(imsi,''), coalesce(meter_type,''),
		       coalesce(meter_serial_number,''), coalesce(secret_hash,''), is_online, last_seen_at,
		       coalesce(status,''), coalesce(boot_status,''), created_at, updated_at
		from charge_points where id=$1
	`, id)

	var cp models.ChargePoint
	if err := row.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.SerialNumber, &cp.BoxSerialNumber,
		&cp.FirmwareVersion, &cp.Iccid, &cp.Imsi, &cp.MeterType,
		&cp.MeterSerialNumber, &cp.SecretHash, &cp.IsOnline, &cp.LastSeenAt,
		&cp.Status, &cp.BootStatus, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

func (r *ChargePointsRepo) TouchLastSeen(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		update charge_points set last_seen_at=$2, is_online=true, updated_at=now() where id=$1
	`, id, t)
	return err
}

// SetStatus updates the aggregate station status, reported by connector 0.
func (r *ChargePointsRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.Pool.Exec(ctx, `update charge_points set status=$2, updated_at=now() where id=$1`, id, status)
	return err
}

func (r *ChargePointsRepo) SetSecret(ctx context.Context, id, secretHash string) error {
	_, err := r.db.Pool.Exec(ctx, `update charge_points set secret_hash=$2, updated_at=now() where id=$1`, id, secretHash)
	return err
}

func (r *ChargePointsRepo) List(ctx context.Context, limit int) ([]models.ChargePoint, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		select id, coalesce(vendor,''), coalesce(model,''), coalesce(firmware_version,''), is_online,
		       last_seen_at, coalesce(status,''), coalesce(boot_status,''), created_at, updated_at
		from charge_points order by id asc limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChargePoint
	for rows.Next() {
		var cp models.ChargePoint
		if err := rows.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.FirmwareVersion, &cp.IsOnline,
			&cp.LastSeenAt, &cp.Status, &cp.BootStatus, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
