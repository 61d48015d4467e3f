package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceSeenWithin(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-10 * time.Second)
	stale := now.Add(-2 * time.Minute)

	assert.True(t, (&Device{LastSeenAt: &fresh}).SeenWithin(30*time.Second, now))
	assert.False(t, (&Device{LastSeenAt: &stale}).SeenWithin(30*time.Second, now))
	assert.False(t, (&Device{}).SeenWithin(30*time.Second, now))

	var nilDevice *Device
	assert.False(t, nilDevice.SeenWithin(30*time.Second, now))
}

func TestCommandName(t *testing.T) {
	for _, c := range []CommandName{CommandStart, CommandPause, CommandStop, CommandSeek, CommandSync, CommandSelectJourney} {
		assert.True(t, c.Known(), c)
		assert.False(t, c.Lifecycle(), c)
	}

	assert.True(t, CommandJoinSession.Lifecycle())
	assert.True(t, CommandLeaveSession.Lifecycle())
	assert.False(t, CommandName("rewind").Known())

	assert.True(t, CommandStart.Scheduled())
	assert.True(t, CommandSeek.Scheduled())
	assert.True(t, CommandSelectJourney.Scheduled())
	assert.False(t, CommandSync.Scheduled())
	assert.False(t, CommandPause.Scheduled())
}

func TestPairReferences(t *testing.T) {
	p := DevicePair{VRDeviceID: "VR_#001", ChairDeviceID: "CHAIR_#001"}
	assert.True(t, p.References("VR_#001"))
	assert.True(t, p.References("CHAIR_#001"))
	assert.False(t, p.References("VR_#002"))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, DeviceTypeVR.Valid())
	assert.False(t, DeviceTypeUnknown.Valid())
	assert.True(t, SessionTypeGroup.Valid())
	assert.False(t, SessionType("solo").Valid())
	assert.True(t, OverallStatusCompleted.Valid())
	assert.False(t, OverallStatus("done").Valid())
}
