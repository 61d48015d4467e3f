package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetsync/orchestrator-go/internal/model"
)

type PairRepository interface {
	FindByID(ctx context.Context, id string) (*model.DevicePair, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.DevicePair, error)
	List(ctx context.Context, includeInactive bool) ([]model.DevicePair, error)
	// FindConflicting returns active pairs referencing either device id, skipping excludeID when set.
	FindConflicting(ctx context.Context, vrDeviceID, chairDeviceID string, excludeID *string) ([]model.DevicePair, error)
	Create(ctx context.Context, params model.CreatePairParams) (*model.DevicePair, error)
	Update(ctx context.Context, id string, params model.UpdatePairParams) (*model.DevicePair, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type pairRepo struct {
	db *sqlx.DB
}

func NewPairRepository(db *sqlx.DB) PairRepository {
	return &pairRepo{db: db}
}

func (r *pairRepo) FindByID(ctx context.Context, id string) (*model.DevicePair, error) {
	var pair model.DevicePair
	err := r.db.GetContext(ctx, &pair, `
		SELECT * FROM device_pairs WHERE id = $1
	`, id)
	return HandleNotFound(&pair, err)
}

func (r *pairRepo) FindByIDs(ctx context.Context, ids []string) ([]model.DevicePair, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM device_pairs WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var pairs []model.DevicePair
	err = r.db.SelectContext(ctx, &pairs, r.db.Rebind(query), args...)
	return pairs, err
}

func (r *pairRepo) List(ctx context.Context, includeInactive bool) ([]model.DevicePair, error) {
	var pairs []model.DevicePair
	err := r.db.SelectContext(ctx, &pairs, `
		SELECT * FROM device_pairs
		WHERE is_active OR $1
		ORDER BY created_at DESC
	`, includeInactive)
	return pairs, err
}

func (r *pairRepo) FindConflicting(ctx context.Context, vrDeviceID, chairDeviceID string, excludeID *string) ([]model.DevicePair, error) {
	var pairs []model.DevicePair
	err := r.db.SelectContext(ctx, &pairs, `
		SELECT * FROM device_pairs
		WHERE (
			(vr_device_id = $1 AND chair_device_id = $2)
			OR vr_device_id IN ($1, $2)
			OR chair_device_id IN ($1, $2)
		)
		AND is_active
		AND ($3::uuid IS NULL OR id <> $3)
	`, vrDeviceID, chairDeviceID, excludeID)
	return pairs, err
}

func (r *pairRepo) Create(ctx context.Context, params model.CreatePairParams) (*model.DevicePair, error) {
	var pair model.DevicePair
	err := r.db.GetContext(ctx, &pair, `
		INSERT INTO device_pairs (pair_name, vr_device_id, chair_device_id, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.PairName, params.VRDeviceID, params.ChairDeviceID, params.Notes)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *pairRepo) Update(ctx context.Context, id string, params model.UpdatePairParams) (*model.DevicePair, error) {
	var pair model.DevicePair
	err := r.db.GetContext(ctx, &pair, `
		UPDATE device_pairs SET
			pair_name = COALESCE($2, pair_name),
			vr_device_id = COALESCE($3, vr_device_id),
			chair_device_id = COALESCE($4, chair_device_id),
			notes = COALESCE($5, notes),
			is_active = COALESCE($6, is_active),
			updated_at = $7
		WHERE id = $1
		RETURNING *
	`, id, params.PairName, params.VRDeviceID, params.ChairDeviceID, params.Notes, params.IsActive, time.Now())
	return HandleNotFound(&pair, err)
}

func (r *pairRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM device_pairs WHERE id = $1
	`, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
