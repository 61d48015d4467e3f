package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsync/orchestrator-go/internal/database"
	"github.com/fleetsync/orchestrator-go/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db.DB))
	_, err = db.ExecContext(ctx, `TRUNCATE session_participants, sessions, device_pairs, devices CASCADE`)
	require.NoError(t, err)

	return db
}

func registerDevice(t *testing.T, repo DeviceRepository, id string, typ model.DeviceType) *model.Device {
	t.Helper()
	d, err := repo.Register(context.Background(), model.RegisterDeviceParams{DeviceID: id, Type: typ})
	require.NoError(t, err)
	return d
}

func TestHandleNotFound(t *testing.T) {
	value := 42
	result, err := HandleNotFound(&value, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, *result)
}

func TestDeviceRepository_TouchLastSeen(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeviceRepository(db.DB)
	ctx := context.Background()
	registerDevice(t, repo, "VR_#001", model.DeviceTypeVR)

	t.Run("advances last seen for registered device", func(t *testing.T) {
		seen := time.Now().Add(time.Minute).Truncate(time.Microsecond)
		found, err := repo.TouchLastSeen(ctx, "VR_#001", seen)
		require.NoError(t, err)
		assert.True(t, found)

		device, err := repo.FindByDeviceID(ctx, "VR_#001")
		require.NoError(t, err)
		require.NotNil(t, device.LastSeenAt)
		assert.True(t, device.LastSeenAt.Equal(seen))
	})

	t.Run("never moves last seen backwards", func(t *testing.T) {
		before, err := repo.FindByDeviceID(ctx, "VR_#001")
		require.NoError(t, err)

		_, err = repo.TouchLastSeen(ctx, "VR_#001", time.Now().Add(-time.Hour))
		require.NoError(t, err)

		after, err := repo.FindByDeviceID(ctx, "VR_#001")
		require.NoError(t, err)
		assert.True(t, after.LastSeenAt.Equal(*before.LastSeenAt))
	})

	t.Run("reports unknown device", func(t *testing.T) {
		found, err := repo.TouchLastSeen(ctx, "VR_#999", time.Now())
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestPairRepository_FindConflicting(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	devices := NewDeviceRepository(db.DB)
	pairs := NewPairRepository(db.DB)
	ctx := context.Background()

	registerDevice(t, devices, "VR_#001", model.DeviceTypeVR)
	registerDevice(t, devices, "CHAIR_#001", model.DeviceTypeChair)
	registerDevice(t, devices, "CHAIR_#002", model.DeviceTypeChair)

	pair, err := pairs.Create(ctx, model.CreatePairParams{
		PairName:      "Bay 1",
		VRDeviceID:    "VR_#001",
		ChairDeviceID: "CHAIR_#001",
	})
	require.NoError(t, err)

	conflicts, err := pairs.FindConflicting(ctx, "VR_#001", "CHAIR_#002", nil)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = pairs.FindConflicting(ctx, "VR_#001", "CHAIR_#002", &pair.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	unpaired, err := devices.ListUnpaired(ctx, nil)
	require.NoError(t, err)
	require.Len(t, unpaired, 1)
	assert.Equal(t, "CHAIR_#002", unpaired[0].DeviceID)

	t.Run("inactive pair frees its devices", func(t *testing.T) {
		inactive := false
		_, err := pairs.Update(ctx, pair.ID, model.UpdatePairParams{IsActive: &inactive})
		require.NoError(t, err)

		conflicts, err := pairs.FindConflicting(ctx, "VR_#001", "CHAIR_#002", nil)
		require.NoError(t, err)
		assert.Empty(t, conflicts)

		unpaired, err := devices.ListUnpaired(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, unpaired, 3)
	})
}

func TestSessionRepository_CreateWithParticipants(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	devices := NewDeviceRepository(db.DB)
	pairs := NewPairRepository(db.DB)
	sessions := NewSessionRepository(db.DB)
	ctx := context.Background()

	registerDevice(t, devices, "VR_#001", model.DeviceTypeVR)
	registerDevice(t, devices, "CHAIR_#001", model.DeviceTypeChair)
	pair, err := pairs.Create(ctx, model.CreatePairParams{PairName: "Bay 1", VRDeviceID: "VR_#001", ChairDeviceID: "CHAIR_#001"})
	require.NoError(t, err)

	session, participants, err := sessions.CreateWithParticipants(ctx,
		model.CreateSessionParams{SessionType: model.SessionTypeIndividual, JourneyIDs: []int64{7, 9}},
		[]model.CreateParticipantParams{{PairID: pair.ID, VRDeviceID: "VR_#001", ChairDeviceID: "CHAIR_#001"}},
	)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReady, session.Status)
	assert.Equal(t, model.OverallStatusOnGoing, session.OverallStatus)
	assert.Equal(t, []int64{7, 9}, []int64(session.JourneyIDs))
	require.Len(t, participants, 1)

	t.Run("duplicate pair rolls back the whole session", func(t *testing.T) {
		p := model.CreateParticipantParams{PairID: pair.ID, VRDeviceID: "VR_#001", ChairDeviceID: "CHAIR_#001"}
		_, _, err := sessions.CreateWithParticipants(ctx,
			model.CreateSessionParams{SessionType: model.SessionTypeGroup},
			[]model.CreateParticipantParams{p, p},
		)
		require.Error(t, err)

		all, err := sessions.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("participant journey update", func(t *testing.T) {
		lang := "en"
		require.NoError(t, sessions.UpdateParticipantJourney(ctx, participants[0].ID, 7, &lang))

		got, err := sessions.FindParticipant(ctx, session.ID, participants[0].ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentJourneyID)
		assert.Equal(t, int64(7), *got.CurrentJourneyID)
		assert.Equal(t, "en", *got.Language)
	})

	t.Run("completed sessions are purged", func(t *testing.T) {
		require.NoError(t, sessions.UpdateState(ctx, session.ID, model.UpdateSessionStateParams{
			Status:        model.SessionStatusStopped,
			OverallStatus: model.OverallStatusCompleted,
			LastCommand:   string(model.CommandStop),
		}))

		count, err := sessions.DeleteCompletedBefore(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		remaining, err := sessions.ListParticipants(ctx, session.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})
}
