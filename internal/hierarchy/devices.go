package hierarchy

import (
	"context"
	"slices"
)

// AddDevice appends a device to a room and records its data payload in the
// latest-value cache.
func (s *Store) AddDevice(ctx context.Context, houseID, floorID, roomID string, in DeviceInput) (Device, error) {
	if err := in.Validate(); err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	f, ri, err := s.resolveRoom(houseID, floorID, roomID)
	if err != nil {
		s.mu.Unlock()
		return Device{}, err
	}
	r := &f.Rooms[ri]
	d := s.buildDevice(in)
	r.Devices = append(r.Devices, d)
	out := d.clone()
	s.mu.Unlock()

	s.logger.Debug("device added", "room_id", roomID, "device_id", out.ID, "type", out.Type)
	s.notify(ctx, Change{Action: ActionCreate, Kind: KindDevice, ID: out.ID, Path: []string{houseID, floorID, roomID}, Entity: out})
	s.recordLatest(ctx, []Device{out})
	return out, nil
}

// GetDevice returns a device.
func (s *Store) GetDevice(_ context.Context, houseID, floorID, roomID, deviceID string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, i, err := s.resolveDevice(houseID, floorID, roomID, deviceID)
	if err != nil {
		return Device{}, err
	}
	return r.Devices[i].clone(), nil
}

// UpdateDevice merges the provided fields into a device. A provided data
// payload replaces the stored one and is forwarded to the latest-value cache.
func (s *Store) UpdateDevice(ctx context.Context, houseID, floorID, roomID, deviceID string, p DevicePatch) (Device, error) {
	if err := p.Validate(); err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	r, i, err := s.resolveDevice(houseID, floorID, roomID, deviceID)
	if err != nil {
		s.mu.Unlock()
		return Device{}, err
	}
	d := &r.Devices[i]
	if p.Name != nil {
		d.Name = cleanName(*p.Name)
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.Data != nil {
		d.Data = deepCopyMap(p.Data)
	}
	out := d.clone()
	s.mu.Unlock()

	s.notify(ctx, Change{Action: ActionUpdate, Kind: KindDevice, ID: out.ID, Path: []string{houseID, floorID, roomID}, Entity: out})
	if p.Data != nil {
		s.recordLatest(ctx, []Device{out})
	}
	return out, nil
}

// DeleteDevice removes a device from its room. The latest-value cache is
// left alone; it is not a source of truth.
func (s *Store) DeleteDevice(ctx context.Context, houseID, floorID, roomID, deviceID string) error {
	s.mu.Lock()
	r, i, err := s.resolveDevice(houseID, floorID, roomID, deviceID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	r.Devices = slices.Delete(r.Devices, i, i+1)
	s.mu.Unlock()

	s.logger.Debug("device deleted", "room_id", roomID, "device_id", deviceID)
	s.notify(ctx, Change{Action: ActionDelete, Kind: KindDevice, ID: deviceID, Path: []string{houseID, floorID, roomID}})
	return nil
}
