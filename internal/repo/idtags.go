package repo

import (
	"context"
	"errors"

	"csms/internal/db"
	"csms/internal/models"

	"github.com/jackc/pgx/v5"
)

// IdTagsRepo reads credentials. Tags are provisioned externally (cmd/seed);
// the message handlers never write them.
type IdTagsRepo struct{ db *db.DB }

func NewIdTagsRepo(d *db.DB) *IdTagsRepo { return &IdTagsRepo{db: d} }

func (r *IdTagsRepo) GetByTag(ctx context.Context, tag string) (*models.IdTag, error) {
	row := r.db.Pool.QueryRow(ctx, `
		select id, tag, status, expiry_date, parent_id_tag, created_at
		from id_tags where tag=$1
	`, tag)

	var t models.IdTag
	if err := row.Scan(&t.ID, &t.Tag, &t.Status, &t.ExpiryDate, &t.ParentIdTag, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *IdTagsRepo) Upsert(ctx context.Context, t models.IdTag) error {
	_, err := r.db.Pool.Exec(ctx, `
		insert into id_tags (tag, status, expiry_date, parent_id_tag)
		values ($1,$2,$3,$4)
		on conflict (tag) do update set
		  status=excluded.status,
		  expiry_date=excluded.expiry_date,
		  parent_id_tag=excluded.parent_id_tag
	`, t.Tag, t.Status, t.ExpiryDate, t.ParentIdTag)
	return err
}
