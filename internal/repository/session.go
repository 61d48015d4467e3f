package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fleetsync/orchestrator-go/internal/database"
	"github.com/fleetsync/orchestrator-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, overall *model.OverallStatus) ([]model.Session, error)
	// CreateWithParticipants inserts the session and every participant in one transaction.
	CreateWithParticipants(ctx context.Context, params model.CreateSessionParams, participants []model.CreateParticipantParams) (*model.Session, []model.SessionParticipant, error)
	UpdateState(ctx context.Context, id string, params model.UpdateSessionStateParams) error
	Delete(ctx context.Context, id string) (bool, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)

	FindParticipant(ctx context.Context, sessionID, participantID string) (*model.SessionParticipant, error)
	FindParticipantByPair(ctx context.Context, sessionID, pairID string) (*model.SessionParticipant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]model.SessionParticipant, error)
	AddParticipant(ctx context.Context, sessionID string, params model.CreateParticipantParams) (*model.SessionParticipant, error)
	RemoveParticipant(ctx context.Context, sessionID, participantID string) (bool, error)
	UpdateParticipantJourney(ctx context.Context, participantID string, journeyID int64, language *string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db   sessionDB
	conn *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db, conn: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx, conn: r.conn}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) List(ctx context.Context, overall *model.OverallStatus) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE ($1::text IS NULL OR overall_status = $1)
		ORDER BY created_at DESC
	`, overall)
	return sessions, err
}

func (r *sessionRepo) CreateWithParticipants(ctx context.Context, params model.CreateSessionParams, participants []model.CreateParticipantParams) (*model.Session, []model.SessionParticipant, error) {
	var (
		session model.Session
		created []model.SessionParticipant
	)

	err := database.WithTx(ctx, r.conn, func(tx *sqlx.Tx) error {
		txRepo := r.WithTx(tx).(*sessionRepo)

		err := tx.GetContext(ctx, &session, `
			INSERT INTO sessions (session_type, status, overall_status, journey_ids, group_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		`, params.SessionType, model.SessionStatusReady, model.OverallStatusOnGoing,
			pq.Int64Array(params.JourneyIDs), params.GroupID)
		if err != nil {
			return err
		}

		for _, p := range participants {
			participant, err := txRepo.AddParticipant(ctx, session.ID, p)
			if err != nil {
				return err
			}
			created = append(created, *participant)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &session, created, nil
}

func (r *sessionRepo) UpdateState(ctx context.Context, id string, params model.UpdateSessionStateParams) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			overall_status = $3,
			last_command = $4,
			last_position_ms = COALESCE($5, last_position_ms),
			updated_at = $6
		WHERE id = $1
	`, id, params.Status, params.OverallStatus, params.LastCommand, params.LastPositionMs, time.Now())
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = $1
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

func (r *sessionRepo) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE overall_status = 'completed' AND updated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) FindParticipant(ctx context.Context, sessionID, participantID string) (*model.SessionParticipant, error) {
	var participant model.SessionParticipant
	err := r.db.GetContext(ctx, &participant, `
		SELECT * FROM session_participants
		WHERE session_id = $1 AND id = $2
	`, sessionID, participantID)
	return HandleNotFound(&participant, err)
}

func (r *sessionRepo) FindParticipantByPair(ctx context.Context, sessionID, pairID string) (*model.SessionParticipant, error) {
	var participant model.SessionParticipant
	err := r.db.GetContext(ctx, &participant, `
		SELECT * FROM session_participants
		WHERE session_id = $1 AND pair_id = $2
	`, sessionID, pairID)
	return HandleNotFound(&participant, err)
}

func (r *sessionRepo) ListParticipants(ctx context.Context, sessionID string) ([]model.SessionParticipant, error) {
	var participants []model.SessionParticipant
	err := r.db.SelectContext(ctx, &participants, `
		SELECT * FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at, id
	`, sessionID)
	return participants, err
}

func (r *sessionRepo) AddParticipant(ctx context.Context, sessionID string, params model.CreateParticipantParams) (*model.SessionParticipant, error) {
	var participant model.SessionParticipant
	err := r.db.GetContext(ctx, &participant, `
		INSERT INTO session_participants (session_id, pair_id, vr_device_id, chair_device_id, language, current_journey_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, sessionID, params.PairID, params.VRDeviceID, params.ChairDeviceID, params.Language, params.CurrentJourneyID)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *sessionRepo) RemoveParticipant(ctx context.Context, sessionID, participantID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM session_participants
		WHERE session_id = $1 AND id = $2
	`, sessionID, participantID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *sessionRepo) UpdateParticipantJourney(ctx context.Context, participantID string, journeyID int64, language *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_participants SET
			current_journey_id = $2,
			language = COALESCE($3, language)
		WHERE id = $1
	`, participantID, journeyID, language)
	return err
}
