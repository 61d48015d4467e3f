package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetsync/orchestrator-go/internal/model"
)

type DeviceRepository interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	FindByDeviceIDs(ctx context.Context, deviceIDs []string) ([]model.Device, error)
	ListUnpaired(ctx context.Context, deviceType *model.DeviceType) ([]model.Device, error)
	Register(ctx context.Context, params model.RegisterDeviceParams) (*model.Device, error)
	// TouchLastSeen advances last_seen_at and reports whether a persisted device matched.
	TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) (bool, error)
	UpdateDisplayName(ctx context.Context, deviceID string, displayName string) error
}

type deviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM devices WHERE device_id = $1
	`, deviceID)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) FindByDeviceIDs(ctx context.Context, deviceIDs []string) ([]model.Device, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM devices WHERE device_id IN (?)`, deviceIDs)
	if err != nil {
		return nil, err
	}

	var devices []model.Device
	err = r.db.SelectContext(ctx, &devices, r.db.Rebind(query), args...)
	return devices, err
}

func (r *deviceRepo) ListUnpaired(ctx context.Context, deviceType *model.DeviceType) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		SELECT d.* FROM devices d
		WHERE ($1::text IS NULL OR d.type = $1)
		AND NOT EXISTS (
			SELECT 1 FROM device_pairs p
			WHERE p.is_active
			AND (p.vr_device_id = d.device_id OR p.chair_device_id = d.device_id)
		)
		ORDER BY d.device_id
	`, deviceType)
	return devices, err
}

func (r *deviceRepo) Register(ctx context.Context, params model.RegisterDeviceParams) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		INSERT INTO devices (device_id, type, display_name, metadata, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			display_name = COALESCE(devices.display_name, EXCLUDED.display_name),
			metadata = COALESCE(EXCLUDED.metadata, devices.metadata),
			last_seen_at = GREATEST(devices.last_seen_at, EXCLUDED.last_seen_at),
			updated_at = NOW()
		RETURNING *
	`, params.DeviceID, params.Type, params.DisplayName, params.Metadata, time.Now())
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			last_seen_at = GREATEST(COALESCE(last_seen_at, $2), $2),
			updated_at = NOW()
		WHERE device_id = $1
	`, deviceID, seenAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *deviceRepo) UpdateDisplayName(ctx context.Context, deviceID string, displayName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			display_name = $2,
			updated_at = $3
		WHERE device_id = $1
	`, deviceID, displayName, time.Now())
	return err
}
