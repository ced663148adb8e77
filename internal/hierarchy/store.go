package hierarchy

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultLatestTimeout bounds a single best-effort latest-value write.
const defaultLatestTimeout = 2 * time.Second

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LatestWriter receives each device's most recent data payload.
// The store treats it as a side channel: errors are logged, never returned.
type LatestWriter interface {
	Set(ctx context.Context, deviceID string, data map[string]any) error
}

// Action is the kind of mutation a Change describes.
type Action string

// Mutation actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes one successful mutation.
type Change struct {
	Action Action `json:"action"`
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`

	// Path holds the ancestor ids root-first; empty for users and houses.
	Path []string `json:"path,omitempty"`

	// Entity is the entity after the mutation (a deep copy); nil on delete.
	Entity any `json:"entity,omitempty"`
}

// Observer is notified after every successful mutation.
type Observer interface {
	OnChange(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, change Change)

// OnChange implements Observer.
func (f ObserverFunc) OnChange(ctx context.Context, change Change) { f(ctx, change) }

// Store owns the users collection and the house tree.
//
// All public methods are thread-safe.
type Store struct {
	mu sync.RWMutex

	users     map[string]*User
	userOrder []string

	houses     map[string]*House
	houseOrder []string

	// issued remembers every id ever handed out so none is reused.
	issued map[string]struct{}
	newID  func(Kind) string

	logger        Logger
	latest        LatestWriter
	latestTimeout time.Duration
	observers     []Observer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:         make(map[string]*User),
		houses:        make(map[string]*House),
		issued:        make(map[string]struct{}),
		newID:         defaultID,
		logger:        noopLogger{},
		latestTimeout: defaultLatestTimeout,
	}
}

func defaultID(kind Kind) string {
	return kind.idPrefix() + uuid.NewString()
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetLatestWriter sets the latest-value cache and the timeout for each write.
// A non-positive timeout keeps the default.
func (s *Store) SetLatestWriter(w LatestWriter, timeout time.Duration) {
	s.latest = w
	if timeout > 0 {
		s.latestTimeout = timeout
	}
}

// SetIDGenerator replaces the id generator. Intended for tests.
func (s *Store) SetIDGenerator(fn func(Kind) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = fn
}

// AddObserver registers an observer. Observers run in registration order.
// Register observers before serving traffic.
func (s *Store) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// nextID returns a fresh id for kind. Caller must hold the write lock.
func (s *Store) nextID(kind Kind) string {
	for {
		id := s.newID(kind)
		if _, taken := s.issued[id]; id != "" && !taken {
			s.issued[id] = struct{}{}
			return id
		}
	}
}

// notify runs observers. Must be called without holding the lock.
func (s *Store) notify(ctx context.Context, change Change) {
	for _, o := range s.observers {
		o.OnChange(ctx, change)
	}
}

// recordLatest writes device payloads to the latest-value cache.
// Must be called without holding the lock.
func (s *Store) recordLatest(ctx context.Context, devices []Device) {
	if s.latest == nil {
		return
	}
	for _, d := range devices {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.latestTimeout)
		err := s.latest.Set(wctx, d.ID, d.Data)
		cancel()
		if err != nil {
			s.logger.Warn("latest-value cache write failed", "device_id", d.ID, "error", err)
		}
	}
}

// ─── Resolution ────────────────────────────────────────────────────
//
// Each resolver walks root → target and returns the owning parent plus the
// index of the target within it. Callers must hold the lock.

func (s *Store) resolveHouse(houseID string) (*House, error) {
	h, ok := s.houses[houseID]
	if !ok {
		return nil, notFound(KindHouse, houseID)
	}
	return h, nil
}

func (s *Store) resolveFloor(houseID, floorID string) (*House, int, error) {
	h, err := s.resolveHouse(houseID)
	if err != nil {
		return nil, -1, err
	}
	i := slices.IndexFunc(h.Floors, func(f Floor) bool { return f.ID == floorID })
	if i < 0 {
		return nil, -1, notFound(KindFloor, floorID)
	}
	return h, i, nil
}

func (s *Store) resolveRoom(houseID, floorID, roomID string) (*Floor, int, error) {
	h, fi, err := s.resolveFloor(houseID, floorID)
	if err != nil {
		return nil, -1, err
	}
	f := &h.Floors[fi]
	i := slices.IndexFunc(f.Rooms, func(r Room) bool { return r.ID == roomID })
	if i < 0 {
		return nil, -1, notFound(KindRoom, roomID)
	}
	return f, i, nil
}

func (s *Store) resolveDevice(houseID, floorID, roomID, deviceID string) (*Room, int, error) {
	f, ri, err := s.resolveRoom(houseID, floorID, roomID)
	if err != nil {
		return nil, -1, err
	}
	r := &f.Rooms[ri]
	i := slices.IndexFunc(r.Devices, func(d Device) bool { return d.ID == deviceID })
	if i < 0 {
		return nil, -1, notFound(KindDevice, deviceID)
	}
	return r, i, nil
}

// ─── Builders ──────────────────────────────────────────────────────
//
// Builders turn validated payloads into entities with fresh ids and append
// every device they create to *devices. Callers must hold the write lock.

func (s *Store) buildFloor(in FloorInput, devices *[]Device) Floor {
	f := Floor{
		ID:       s.nextID(KindFloor),
		Name:     cleanName(in.Name),
		Metadata: in.Metadata.clone(),
		Rooms:    make([]Room, 0, len(in.Rooms)),
	}
	for _, rin := range in.Rooms {
		f.Rooms = append(f.Rooms, s.buildRoom(rin, devices))
	}
	return f
}

func (s *Store) buildRoom(in RoomInput, devices *[]Device) Room {
	r := Room{
		ID:       s.nextID(KindRoom),
		Name:     cleanName(in.Name),
		Metadata: in.Metadata.clone(),
		Devices:  make([]Device, 0, len(in.Devices)),
	}
	for _, din := range in.Devices {
		d := s.buildDevice(din)
		r.Devices = append(r.Devices, d)
		*devices = append(*devices, d.clone())
	}
	return r
}

func (s *Store) buildDevice(in DeviceInput) Device {
	data := deepCopyMap(in.Data)
	if data == nil {
		data = map[string]any{}
	}
	return Device{
		ID:   s.nextID(KindDevice),
		Name: cleanName(in.Name),
		Type: in.Type,
		Data: data,
	}
}

// ─── Whole-store queries ───────────────────────────────────────────

// Stats returns the number of live entities per kind.
func (s *Store) Stats() map[Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[Kind]int{
		KindUser:  len(s.users),
		KindHouse: len(s.houses),
	}
	for _, h := range s.houses {
		counts[KindFloor] += len(h.Floors)
		for _, f := range h.Floors {
			counts[KindRoom] += len(f.Rooms)
			for _, r := range f.Rooms {
				counts[KindDevice] += len(r.Devices)
			}
		}
	}
	return counts
}

// LocateDevice finds a device by id alone by scanning the whole tree.
// It returns the device together with the path of its ancestors.
func (s *Store) LocateDevice(_ context.Context, deviceID string) (Device, DevicePath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, hid := range s.houseOrder {
		h := s.houses[hid]
		for _, f := range h.Floors {
			for _, r := range f.Rooms {
				for i := range r.Devices {
					if r.Devices[i].ID == deviceID {
						return r.Devices[i].clone(), DevicePath{HouseID: h.ID, FloorID: f.ID, RoomID: r.ID}, nil
					}
				}
			}
		}
	}
	return Device{}, DevicePath{}, notFound(KindDevice, deviceID)
}

// removeID deletes id from an ordering slice.
func removeID(order []string, id string) []string {
	if i := slices.Index(order, id); i >= 0 {
		return slices.Delete(order, i, i+1)
	}
	return order
}
