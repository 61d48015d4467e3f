package service

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/fleetsync/orchestrator-go/internal/errors"
	"github.com/fleetsync/orchestrator-go/internal/model"
	"github.com/fleetsync/orchestrator-go/internal/repository"
)

// disposablePairName matches names operators leave at their UI defaults.
var disposablePairName = regexp.MustCompile(`(?i)^\s*((new\s+)?pair|untitled)?\s*#?\s*\d*\s*$`)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

type CreatePairInput struct {
	VRDeviceID    string  `json:"vrDeviceId"`
	ChairDeviceID string  `json:"chairDeviceId"`
	PairName      string  `json:"pairName,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type UpdatePairInput struct {
	PairName      *string `json:"pairName,omitempty"`
	VRDeviceID    *string `json:"vrDeviceId,omitempty"`
	ChairDeviceID *string `json:"chairDeviceId,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	IsActive      *bool   `json:"isActive,omitempty"`
}

type PairingService struct {
	pairRepo       repository.PairRepository
	deviceRepo     repository.DeviceRepository
	presence       Presence
	lastSeenWindow time.Duration
	now            func() time.Time
}

func NewPairingService(
	pairRepo repository.PairRepository,
	deviceRepo repository.DeviceRepository,
	presence Presence,
	lastSeenWindow time.Duration,
) *PairingService {
	return &PairingService{
		pairRepo:       pairRepo,
		deviceRepo:     deviceRepo,
		presence:       presence,
		lastSeenWindow: lastSeenWindow,
		now:            time.Now,
	}
}

func (s *PairingService) CreatePair(ctx context.Context, input CreatePairInput) (*model.PairStatus, error) {
	vrID := strings.TrimSpace(input.VRDeviceID)
	chairID := strings.TrimSpace(input.ChairDeviceID)

	if vrID == "" {
		return nil, apperrors.MissingRequired("vrDeviceId")
	}
	if chairID == "" {
		return nil, apperrors.MissingRequired("chairDeviceId")
	}
	if vrID == chairID {
		return nil, apperrors.ValidationError("VR and chair must be different devices")
	}

	vr, err := s.resolveDevice(ctx, vrID, model.DeviceTypeVR)
	if err != nil {
		return nil, err
	}
	chair, err := s.resolveDevice(ctx, chairID, model.DeviceTypeChair)
	if err != nil {
		return nil, err
	}

	if err := s.checkConflicts(ctx, vrID, chairID, nil); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.PairName)
	if disposablePairName.MatchString(name) {
		name = s.synthesizeName(ctx, vr, chair)
	}

	pair, err := s.pairRepo.Create(ctx, model.CreatePairParams{
		PairName:      name,
		VRDeviceID:    vrID,
		ChairDeviceID: chairID,
		Notes:         input.Notes,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("pairId", pair.ID).
		Str("vrDeviceId", vrID).
		Str("chairDeviceId", chairID).
		Str("pairName", name).
		Msg("device pair created")

	return s.enrich(pair, vr, chair), nil
}

func (s *PairingService) ListPairs(ctx context.Context, includeInactive bool) ([]model.PairStatus, error) {
	pairs, err := s.pairRepo.List(ctx, includeInactive)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return s.enrichAll(ctx, pairs)
}

func (s *PairingService) GetPair(ctx context.Context, id string) (*model.PairStatus, error) {
	pair, err := s.pairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pair == nil {
		return nil, apperrors.NotFound("Pair")
	}

	statuses, err := s.enrichAll(ctx, []model.DevicePair{*pair})
	if err != nil {
		return nil, err
	}
	return &statuses[0], nil
}

func (s *PairingService) UpdatePair(ctx context.Context, id string, input UpdatePairInput) (*model.PairStatus, error) {
	existing, err := s.pairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing == nil {
		return nil, apperrors.NotFound("Pair")
	}

	vrID := existing.VRDeviceID
	if input.VRDeviceID != nil {
		vrID = strings.TrimSpace(*input.VRDeviceID)
	}
	chairID := existing.ChairDeviceID
	if input.ChairDeviceID != nil {
		chairID = strings.TrimSpace(*input.ChairDeviceID)
	}

	if vrID == "" || chairID == "" {
		return nil, apperrors.ValidationError("Device ids cannot be empty")
	}
	if vrID == chairID {
		return nil, apperrors.ValidationError("VR and chair must be different devices")
	}

	membersChanged := vrID != existing.VRDeviceID || chairID != existing.ChairDeviceID
	activating := input.IsActive != nil && *input.IsActive && !existing.IsActive

	var vr, chair *model.Device
	if membersChanged {
		if vr, err = s.resolveDevice(ctx, vrID, model.DeviceTypeVR); err != nil {
			return nil, err
		}
		if chair, err = s.resolveDevice(ctx, chairID, model.DeviceTypeChair); err != nil {
			return nil, err
		}
	}
	if membersChanged || activating {
		if err := s.checkConflicts(ctx, vrID, chairID, &existing.ID); err != nil {
			return nil, err
		}
	}

	params := model.UpdatePairParams{
		Notes:    input.Notes,
		IsActive: input.IsActive,
	}
	if membersChanged {
		params.VRDeviceID = &vrID
		params.ChairDeviceID = &chairID
	}
	if input.PairName != nil {
		name := strings.TrimSpace(*input.PairName)
		if disposablePairName.MatchString(name) {
			if vr == nil {
				if vr, err = s.resolveDevice(ctx, vrID, model.DeviceTypeVR); err != nil {
					return nil, err
				}
			}
			if chair == nil {
				if chair, err = s.resolveDevice(ctx, chairID, model.DeviceTypeChair); err != nil {
					return nil, err
				}
			}
			name = s.synthesizeName(ctx, vr, chair)
		}
		params.PairName = &name
	}

	pair, err := s.pairRepo.Update(ctx, id, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pair == nil {
		return nil, apperrors.NotFound("Pair")
	}

	log.Info().Str("pairId", id).Msg("device pair updated")

	statuses, err := s.enrichAll(ctx, []model.DevicePair{*pair})
	if err != nil {
		return nil, err
	}
	return &statuses[0], nil
}

func (s *PairingService) DeletePair(ctx context.Context, id string) error {
	deleted, err := s.pairRepo.Delete(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("Pair")
	}

	log.Info().Str("pairId", id).Msg("device pair deleted")
	return nil
}

// AvailableDevices lists persisted devices not referenced by any active pair.
func (s *PairingService) AvailableDevices(ctx context.Context, deviceType string) ([]model.Device, error) {
	var filter *model.DeviceType
	if deviceType != "" {
		t := model.DeviceType(deviceType)
		if !t.Valid() {
			return nil, apperrors.InvalidInput("type", "must be vr or chair")
		}
		filter = &t
	}

	devices, err := s.deviceRepo.ListUnpaired(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return devices, nil
}

// OnlinePairs returns active pairs with at least one member online.
func (s *PairingService) OnlinePairs(ctx context.Context) ([]model.PairStatus, error) {
	pairs, err := s.ListPairs(ctx, false)
	if err != nil {
		return nil, err
	}

	online := make([]model.PairStatus, 0, len(pairs))
	for _, p := range pairs {
		if p.VROnline || p.ChairOnline {
			online = append(online, p)
		}
	}
	return online, nil
}

// DevicesOnline reports each device as online when the tracker sees it live
// or its persisted last-seen falls inside the window.
func (s *PairingService) DevicesOnline(ctx context.Context, deviceIDs []string) (map[string]bool, error) {
	status := s.presence.DevicesOnlineStatus(deviceIDs)

	var stale []string
	for _, id := range deviceIDs {
		if !status[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return status, nil
	}

	devices, err := s.deviceRepo.FindByDeviceIDs(ctx, stale)
	if err != nil {
		return status, apperrors.Database(err)
	}

	now := s.now()
	for i := range devices {
		if devices[i].SeenWithin(s.lastSeenWindow, now) {
			status[devices[i].DeviceID] = true
		}
	}
	return status, nil
}

// resolveDevice finds a persisted device, registering a discovered one on the fly.
func (s *PairingService) resolveDevice(ctx context.Context, deviceID string, role model.DeviceType) (*model.Device, error) {
	device, err := s.deviceRepo.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if device == nil {
		discovered, ok := s.presence.Device(deviceID)
		if !ok {
			return nil, apperrors.NotFound(fmt.Sprintf("Device %s", deviceID))
		}
		if discovered.Type.Valid() && discovered.Type != role {
			return nil, roleMismatch(deviceID, discovered.Type, role)
		}

		params := model.RegisterDeviceParams{
			DeviceID: deviceID,
			Type:     role,
			Metadata: discovered.Metadata,
		}
		if discovered.Name != "" {
			params.DisplayName = &discovered.Name
		}

		device, err = s.deviceRepo.Register(ctx, params)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		s.presence.MarkRegistered(deviceID)

		log.Info().
			Str("deviceId", deviceID).
			Str("type", string(role)).
			Msg("discovered device registered")
	}

	if device.Type != role {
		return nil, roleMismatch(deviceID, device.Type, role)
	}
	return device, nil
}

func roleMismatch(deviceID string, actual, role model.DeviceType) *apperrors.AppError {
	return apperrors.InvalidInput("device type",
		fmt.Sprintf("%s is a %s device and cannot be the %s member", deviceID, actual, role))
}

func (s *PairingService) checkConflicts(ctx context.Context, vrID, chairID string, excludeID *string) error {
	conflicts, err := s.pairRepo.FindConflicting(ctx, vrID, chairID, excludeID)
	if err != nil {
		return apperrors.Database(err)
	}
	if len(conflicts) == 0 {
		return nil
	}

	var paired []string
	for _, p := range conflicts {
		for _, id := range []string{vrID, chairID} {
			if p.References(id) && !slices.Contains(paired, id) {
				paired = append(paired, id)
			}
		}
	}

	log.Warn().
		Strs("deviceIds", paired).
		Str("existingPairId", conflicts[0].ID).
		Msg("pair conflict")

	return apperrors.AlreadyPaired(paired...)
}

// synthesizeName builds "<vr> + <chair>", giving unnamed devices a generated display name.
func (s *PairingService) synthesizeName(ctx context.Context, vr, chair *model.Device) string {
	return s.ensureDisplayName(ctx, vr) + " + " + s.ensureDisplayName(ctx, chair)
}

func (s *PairingService) ensureDisplayName(ctx context.Context, device *model.Device) string {
	if device.DisplayName != nil && strings.TrimSpace(*device.DisplayName) != "" {
		return *device.DisplayName
	}

	name := GenerateDisplayName(device.DeviceID, device.Type)
	if err := s.deviceRepo.UpdateDisplayName(ctx, device.DeviceID, name); err != nil {
		log.Warn().Err(err).Str("deviceId", device.DeviceID).Msg("failed to persist generated display name")
	} else {
		device.DisplayName = &name
	}
	return name
}

// GenerateDisplayName derives "VR Headset 001" / "Motion Chair 001" from the
// trailing digits of the hardware id.
func GenerateDisplayName(deviceID string, deviceType model.DeviceType) string {
	prefix := "Device"
	switch deviceType {
	case model.DeviceTypeVR:
		prefix = "VR Headset"
	case model.DeviceTypeChair:
		prefix = "Motion Chair"
	}

	digits := trailingDigits.FindString(deviceID)
	if digits == "" {
		return prefix + " " + deviceID
	}
	if n, err := strconv.Atoi(digits); err == nil && len(digits) < 3 {
		return fmt.Sprintf("%s %03d", prefix, n)
	}
	return prefix + " " + digits
}

func (s *PairingService) enrichAll(ctx context.Context, pairs []model.DevicePair) ([]model.PairStatus, error) {
	ids := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		ids = append(ids, p.VRDeviceID, p.ChairDeviceID)
	}

	devices, err := s.deviceRepo.FindByDeviceIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	byID := make(map[string]*model.Device, len(devices))
	for i := range devices {
		byID[devices[i].DeviceID] = &devices[i]
	}

	statuses := make([]model.PairStatus, 0, len(pairs))
	for i := range pairs {
		p := pairs[i]
		statuses = append(statuses, *s.enrich(&p, byID[p.VRDeviceID], byID[p.ChairDeviceID]))
	}
	return statuses, nil
}

func (s *PairingService) enrich(pair *model.DevicePair, vr, chair *model.Device) *model.PairStatus {
	now := s.now()
	vrOnline := s.presence.IsOnline(pair.VRDeviceID) || vr.SeenWithin(s.lastSeenWindow, now)
	chairOnline := s.presence.IsOnline(pair.ChairDeviceID) || chair.SeenWithin(s.lastSeenWindow, now)

	return &model.PairStatus{
		DevicePair:  *pair,
		VRDevice:    vr,
		ChairDevice: chair,
		VROnline:    vrOnline,
		ChairOnline: chairOnline,
		BothOnline:  vrOnline && chairOnline,
	}
}
