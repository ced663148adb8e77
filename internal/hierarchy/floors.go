package hierarchy

import (
	"context"
	"slices"
)

// AddFloor appends a floor, with any rooms and devices supplied inline, to a house.
func (s *Store) AddFloor(ctx context.Context, houseID string, in FloorInput) (Floor, error) {
	if err := in.Validate(); err != nil {
		return Floor{}, err
	}

	var devices []Device
	s.mu.Lock()
	h, err := s.resolveHouse(houseID)
	if err != nil {
		s.mu.Unlock()
		return Floor{}, err
	}
	f := s.buildFloor(in, &devices)
	h.Floors = append(h.Floors, f)
	out := f.clone()
	s.mu.Unlock()

	s.logger.Debug("floor added", "house_id", houseID, "floor_id", out.ID)
	s.notify(ctx, Change{Action: ActionCreate, Kind: KindFloor, ID: out.ID, Path: []string{houseID}, Entity: out})
	s.recordLatest(ctx, devices)
	return out, nil
}

// GetFloor returns a floor with its rooms and devices.
func (s *Store) GetFloor(_ context.Context, houseID, floorID string) (Floor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, i, err := s.resolveFloor(houseID, floorID)
	if err != nil {
		return Floor{}, err
	}
	return h.Floors[i].clone(), nil
}

// UpdateFloor merges the provided fields into a floor.
func (s *Store) UpdateFloor(ctx context.Context, houseID, floorID string, p LocationPatch) (Floor, error) {
	if err := validateLocationPatch(KindFloor, p); err != nil {
		return Floor{}, err
	}

	s.mu.Lock()
	h, i, err := s.resolveFloor(houseID, floorID)
	if err != nil {
		s.mu.Unlock()
		return Floor{}, err
	}
	f := &h.Floors[i]
	if p.Name != nil {
		f.Name = cleanName(*p.Name)
	}
	if p.Metadata != nil {
		f.Metadata = p.Metadata.clone()
	}
	out := f.clone()
	s.mu.Unlock()

	s.notify(ctx, Change{Action: ActionUpdate, Kind: KindFloor, ID: out.ID, Path: []string{houseID}, Entity: out})
	return out, nil
}

// DeleteFloor removes a floor and every room and device on it.
func (s *Store) DeleteFloor(ctx context.Context, houseID, floorID string) error {
	s.mu.Lock()
	h, i, err := s.resolveFloor(houseID, floorID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	h.Floors = slices.Delete(h.Floors, i, i+1)
	s.mu.Unlock()

	s.logger.Debug("floor deleted", "house_id", houseID, "floor_id", floorID)
	s.notify(ctx, Change{Action: ActionDelete, Kind: KindFloor, ID: floorID, Path: []string{houseID}})
	return nil
}
