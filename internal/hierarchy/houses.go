package hierarchy

import "context"

// CreateHouse adds a house, with any floors, rooms and devices supplied
// inline, to the root collection.
func (s *Store) CreateHouse(ctx context.Context, in HouseInput) (House, error) {
	if err := in.Validate(); err != nil {
		return House{}, err
	}

	var devices []Device
	s.mu.Lock()
	h := &House{
		ID:       s.nextID(KindHouse),
		Name:     cleanName(in.Name),
		Metadata: in.Metadata.clone(),
		Floors:   make([]Floor, 0, len(in.Floors)),
	}
	for _, fin := range in.Floors {
		h.Floors = append(h.Floors, s.buildFloor(fin, &devices))
	}
	s.houses[h.ID] = h
	s.houseOrder = append(s.houseOrder, h.ID)
	out := h.clone()
	s.mu.Unlock()

	s.logger.Debug("house created", "house_id", out.ID, "floors", len(out.Floors))
	s.notify(ctx, Change{Action: ActionCreate, Kind: KindHouse, ID: out.ID, Entity: out})
	s.recordLatest(ctx, devices)
	return out, nil
}

// GetHouse returns a house with its full subtree.
func (s *Store) GetHouse(_ context.Context, houseID string) (House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := s.resolveHouse(houseID)
	if err != nil {
		return House{}, err
	}
	return h.clone(), nil
}

// ListHouses returns every house in creation order.
func (s *Store) ListHouses(_ context.Context) []House {
	s.mu.RLock()
	defer s.mu.RUnlock()

	houses := make([]House, 0, len(s.houseOrder))
	for _, id := range s.houseOrder {
		houses = append(houses, s.houses[id].clone())
	}
	return houses
}

// UpdateHouse merges the provided fields into a house. Floors are managed
// through their own operations and are never touched here.
func (s *Store) UpdateHouse(ctx context.Context, houseID string, p LocationPatch) (House, error) {
	if err := validateLocationPatch(KindHouse, p); err != nil {
		return House{}, err
	}

	s.mu.Lock()
	h, err := s.resolveHouse(houseID)
	if err != nil {
		s.mu.Unlock()
		return House{}, err
	}
	if p.Name != nil {
		h.Name = cleanName(*p.Name)
	}
	if p.Metadata != nil {
		h.Metadata = p.Metadata.clone()
	}
	out := h.clone()
	s.mu.Unlock()

	s.notify(ctx, Change{Action: ActionUpdate, Kind: KindHouse, ID: out.ID, Entity: out})
	return out, nil
}

// DeleteHouse removes a house and everything beneath it.
func (s *Store) DeleteHouse(ctx context.Context, houseID string) error {
	s.mu.Lock()
	if _, err := s.resolveHouse(houseID); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.houses, houseID)
	s.houseOrder = removeID(s.houseOrder, houseID)
	s.mu.Unlock()

	s.logger.Debug("house deleted", "house_id", houseID)
	s.notify(ctx, Change{Action: ActionDelete, Kind: KindHouse, ID: houseID})
	return nil
}
