package hierarchy

import (
	"context"
	"slices"
)

// AddRoom appends a room, with any devices supplied inline, to a floor.
func (s *Store) AddRoom(ctx context.Context, houseID, floorID string, in RoomInput) (Room, error) {
	if err := in.Validate(); err != nil {
		return Room{}, err
	}

	var devices []Device
	s.mu.Lock()
	h, fi, err := s.resolveFloor(houseID, floorID)
	if err != nil {
		s.mu.Unlock()
		return Room{}, err
	}
	f := &h.Floors[fi]
	r := s.buildRoom(in, &devices)
	f.Rooms = append(f.Rooms, r)
	out := r.clone()
	s.mu.Unlock()

	s.logger.Debug("room added", "house_id", houseID, "floor_id", floorID, "room_id", out.ID)
	s.notify(ctx, Change{Action: ActionCreate, Kind: KindRoom, ID: out.ID, Path: []string{houseID, floorID}, Entity: out})
	s.recordLatest(ctx, devices)
	return out, nil
}

// GetRoom returns a room with its devices.
func (s *Store) GetRoom(_ context.Context, houseID, floorID, roomID string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, i, err := s.resolveRoom(houseID, floorID, roomID)
	if err != nil {
		return Room{}, err
	}
	return f.Rooms[i].clone(), nil
}

// UpdateRoom merges the provided fields into a room.
func (s *Store) UpdateRoom(ctx context.Context, houseID, floorID, roomID string, p LocationPatch) (Room, error) {
	if err := validateLocationPatch(KindRoom, p); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	f, i, err := s.resolveRoom(houseID, floorID, roomID)
	if err != nil {
		s.mu.Unlock()
		return Room{}, err
	}
	r := &f.Rooms[i]
	if p.Name != nil {
		r.Name = cleanName(*p.Name)
	}
	if p.Metadata != nil {
		r.Metadata = p.Metadata.clone()
	}
	out := r.clone()
	s.mu.Unlock()

	s.notify(ctx, Change{Action: ActionUpdate, Kind: KindRoom, ID: out.ID, Path: []string{houseID, floorID}, Entity: out})
	return out, nil
}

// DeleteRoom removes a room and every device in it.
func (s *Store) DeleteRoom(ctx context.Context, houseID, floorID, roomID string) error {
	s.mu.Lock()
	f, i, err := s.resolveRoom(houseID, floorID, roomID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	f.Rooms = slices.Delete(f.Rooms, i, i+1)
	s.mu.Unlock()

	s.logger.Debug("room deleted", "house_id", houseID, "floor_id", floorID, "room_id", roomID)
	s.notify(ctx, Change{Action: ActionDelete, Kind: KindRoom, ID: roomID, Path: []string{houseID, floorID}})
	return nil
}
