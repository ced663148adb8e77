package hierarchy

import (
	"encoding/json"
	"strings"
)

// Kind names an entity type.
type Kind string

// Entity kinds, root to leaf.
const (
	KindUser   Kind = "user"
	KindHouse  Kind = "house"
	KindFloor  Kind = "floor"
	KindRoom   Kind = "room"
	KindDevice Kind = "device"
)

// Kinds lists every entity kind.
var Kinds = []Kind{KindUser, KindHouse, KindFloor, KindRoom, KindDevice}

// Title returns the kind with an upper-case first letter ("House").
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// idPrefix is prepended to generated ids so an id reveals its kind.
func (k Kind) idPrefix() string {
	switch k {
	case KindUser:
		return "usr-"
	case KindHouse:
		return "hse-"
	case KindFloor:
		return "flr-"
	case KindRoom:
		return "rom-"
	case KindDevice:
		return "dev-"
	default:
		return ""
	}
}

// User is a person with access to the system. Users have no children.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Metadata is optional descriptive information on houses, floors and rooms.
type Metadata struct {
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

// House is a root of the location tree.
type House struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Metadata *Metadata `json:"metadata"`
	Floors   []Floor   `json:"floors"`
}

// Floor is a level of a house.
type Floor struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Metadata *Metadata `json:"metadata"`
	Rooms    []Room    `json:"rooms"`
}

// Room is a physical space on a floor.
type Room struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Metadata *Metadata `json:"metadata"`
	Devices  []Device  `json:"devices"`
}

// Device is a piece of equipment installed in a room.
type Device struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// DevicePath locates a device in the tree.
type DevicePath struct {
	HouseID string `json:"house_id"`
	FloorID string `json:"floor_id"`
	RoomID  string `json:"room_id"`
}

// ─── Payloads ──────────────────────────────────────────────────────
//
// Input types carry a create payload; Patch types carry a merge update where
// nil means "leave unchanged". All of them expose an ID field only so that a
// caller-supplied id can be detected and rejected.

// UserInput is the create payload for a user.
type UserInput struct {
	ID    SuppliedID `json:"id,omitzero"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
}

// UserPatch is the merge update payload for a user.
type UserPatch struct {
	ID    SuppliedID `json:"id,omitzero"`
	Name  *string    `json:"name,omitempty"`
	Email *string    `json:"email,omitempty"`
}

// HouseInput is the create payload for a house, optionally with floors inline.
type HouseInput struct {
	ID       SuppliedID   `json:"id,omitzero"`
	Name     string       `json:"name"`
	Metadata *Metadata    `json:"metadata,omitempty"`
	Floors   []FloorInput `json:"floors,omitempty"`
}

// FloorInput is the create payload for a floor, optionally with rooms inline.
type FloorInput struct {
	ID       SuppliedID  `json:"id,omitzero"`
	Name     string      `json:"name"`
	Metadata *Metadata   `json:"metadata,omitempty"`
	Rooms    []RoomInput `json:"rooms,omitempty"`
}

// RoomInput is the create payload for a room, optionally with devices inline.
type RoomInput struct {
	ID       SuppliedID    `json:"id,omitzero"`
	Name     string        `json:"name"`
	Metadata *Metadata     `json:"metadata,omitempty"`
	Devices  []DeviceInput `json:"devices,omitempty"`
}

// DeviceInput is the create payload for a device.
type DeviceInput struct {
	ID   SuppliedID     `json:"id,omitzero"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// LocationPatch is the merge update payload shared by houses, floors and
// rooms. A provided Metadata replaces the stored metadata as a whole.
type LocationPatch struct {
	ID       SuppliedID `json:"id,omitzero"`
	Name     *string    `json:"name,omitempty"`
	Metadata *Metadata  `json:"metadata,omitempty"`
}

// DevicePatch is the merge update payload for a device. A provided Data
// replaces the stored payload as a whole.
type DevicePatch struct {
	ID   SuppliedID     `json:"id,omitzero"`
	Name *string        `json:"name,omitempty"`
	Type *string        `json:"type,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// ─── Deep copies ───────────────────────────────────────────────────

func (m *Metadata) clone() *Metadata {
	if m == nil {
		return nil
	}
	return &Metadata{
		Description: cloneString(m.Description),
		Location:    cloneString(m.Location),
	}
}

func (h *House) clone() House {
	cpy := *h
	cpy.Metadata = h.Metadata.clone()
	cpy.Floors = make([]Floor, len(h.Floors))
	for i := range h.Floors {
		cpy.Floors[i] = h.Floors[i].clone()
	}
	return cpy
}

func (f *Floor) clone() Floor {
	cpy := *f
	cpy.Metadata = f.Metadata.clone()
	cpy.Rooms = make([]Room, len(f.Rooms))
	for i := range f.Rooms {
		cpy.Rooms[i] = f.Rooms[i].clone()
	}
	return cpy
}

func (r *Room) clone() Room {
	cpy := *r
	cpy.Metadata = r.Metadata.clone()
	cpy.Devices = make([]Device, len(r.Devices))
	for i := range r.Devices {
		cpy.Devices[i] = r.Devices[i].clone()
	}
	return cpy
}

func (d *Device) clone() Device {
	cpy := *d
	cpy.Data = deepCopyMap(d.Data)
	if cpy.Data == nil {
		cpy.Data = map[string]any{}
	}
	return cpy
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// deepCopyMap copies a JSON-shaped map, recursing into nested maps and slices.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// SuppliedID records an "id" key in a request payload. Ids are assigned by
// the store, so any value counts as supplied, null included.
type SuppliedID struct {
	Present bool
	Raw     json.RawMessage
}

// UnmarshalJSON is called for every "id" key, including an explicit null.
func (s *SuppliedID) UnmarshalJSON(b []byte) error {
	s.Present = true
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (s SuppliedID) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// IsZero reports whether no id was supplied.
func (s SuppliedID) IsZero() bool { return !s.Present }
