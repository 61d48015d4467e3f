package model

type DeviceType string

const (
	DeviceTypeVR      DeviceType = "vr"
	DeviceTypeChair   DeviceType = "chair"
	DeviceTypeUnknown DeviceType = "unknown"
)

// Valid reports whether t is a type a persisted device may have.
func (t DeviceType) Valid() bool {
	return t == DeviceTypeVR || t == DeviceTypeChair
}

type SessionType string

const (
	SessionTypeIndividual SessionType = "individual"
	SessionTypeGroup      SessionType = "group"
)

func (t SessionType) Valid() bool {
	return t == SessionTypeIndividual || t == SessionTypeGroup
}

type SessionStatus string

const (
	SessionStatusReady   SessionStatus = "ready"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusPaused  SessionStatus = "paused"
	SessionStatusStopped SessionStatus = "stopped"
)

type OverallStatus string

const (
	OverallStatusOnGoing   OverallStatus = "on_going"
	OverallStatusCompleted OverallStatus = "completed"
)

func (s OverallStatus) Valid() bool {
	return s == OverallStatusOnGoing || s == OverallStatusCompleted
}
