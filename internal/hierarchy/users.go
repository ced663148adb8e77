package hierarchy

import "context"

// CreateUser adds a user to the root collection.
func (s *Store) CreateUser(ctx context.Context, in UserInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	u := &User{
		ID:    s.nextID(KindUser),
		Name:  cleanName(in.Name),
		Email: in.Email,
	}
	s.users[u.ID] = u
	s.userOrder = append(s.userOrder, u.ID)
	out := *u
	s.mu.Unlock()

	s.logger.Debug("user created", "user_id", out.ID)
	s.notify(ctx, Change{Action: ActionCreate, Kind: KindUser, ID: out.ID, Entity: out})
	return out, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, notFound(KindUser, userID)
	}
	return *u, nil
}

// ListUsers returns every user in creation order.
func (s *Store) ListUsers(_ context.Context) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, *s.users[id])
	}
	return users
}

// UpdateUser merges the provided fields into a user.
func (s *Store) UpdateUser(ctx context.Context, userID string, p UserPatch) (User, error) {
	if err := p.Validate(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return User{}, notFound(KindUser, userID)
	}
	if p.Name != nil {
		u.Name = cleanName(*p.Name)
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	out := *u
	s.mu.Unlock()

	s.notify(ctx, Change{Action: ActionUpdate, Kind: KindUser, ID: out.ID, Entity: out})
	return out, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	if _, ok := s.users[userID]; !ok {
		s.mu.Unlock()
		return notFound(KindUser, userID)
	}
	delete(s.users, userID)
	s.userOrder = removeID(s.userOrder, userID)
	s.mu.Unlock()

	s.logger.Debug("user deleted", "user_id", userID)
	s.notify(ctx, Change{Action: ActionDelete, Kind: KindUser, ID: userID})
	return nil
}
