package hierarchy

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	maxNameLength     = 100
	maxFieldLength    = 1024
	maxDataKeys       = 50
	maxNestingDepth   = 10
	maxChildrenInline = 100
)

// cleanName is the stored form of a name; validateName checks this form.
func cleanName(name string) string { return strings.TrimSpace(name) }

// validateName checks a required name. Length counts characters, not bytes.
func validateName(kind Kind, name string) error {
	name = cleanName(name)
	if name == "" {
		return fmt.Errorf("%w: %s name is required", ErrInvalid, kind)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: %s name exceeds %d characters", ErrInvalid, kind, maxNameLength)
	}
	return nil
}

// validateText checks a required free-text field such as an email or type.
func validateText(kind Kind, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s %s is required", ErrInvalid, kind, field)
	}
	if utf8.RuneCountInString(value) > maxFieldLength {
		return fmt.Errorf("%w: %s %s exceeds %d characters", ErrInvalid, kind, field, maxFieldLength)
	}
	return nil
}

func validateEmail(email string) error {
	if err := validateText(KindUser, "email", email); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: user email %q is not a valid address", ErrInvalid, email)
	}
	return nil
}

func rejectID(kind Kind, id SuppliedID) error {
	if id.Present {
		return fmt.Errorf("%w: %s payload must not carry an id", ErrIDNotAllowed, kind)
	}
	return nil
}

func validateMetadata(kind Kind, m *Metadata) error {
	if m == nil {
		return nil
	}
	if m.Description != nil && utf8.RuneCountInString(*m.Description) > maxFieldLength {
		return fmt.Errorf("%w: %s metadata.description exceeds %d characters", ErrInvalid, kind, maxFieldLength)
	}
	if m.Location != nil && utf8.RuneCountInString(*m.Location) > maxFieldLength {
		return fmt.Errorf("%w: %s metadata.location exceeds %d characters", ErrInvalid, kind, maxFieldLength)
	}
	return nil
}

// ValidateData checks a device data payload against size and nesting limits.
func ValidateData(data map[string]any) error {
	if len(data) > maxDataKeys {
		return fmt.Errorf("%w: device data exceeds max keys (%d)", ErrInvalid, maxDataKeys)
	}
	return validateMapSize(data, 0)
}

func validateMapSize(m map[string]any, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: device data exceeds maximum nesting depth", ErrInvalid)
	}
	for k, v := range m {
		if len(k) > maxFieldLength {
			return fmt.Errorf("%w: device data key too long", ErrInvalid)
		}
		if err := validateValueSize(v, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateValueSize(v any, depth int) error {
	switch val := v.(type) {
	case string:
		if len(val) > maxFieldLength {
			return fmt.Errorf("%w: device data string value too long", ErrInvalid)
		}
	case map[string]any:
		if len(val) > maxDataKeys {
			return fmt.Errorf("%w: device data nested map too large", ErrInvalid)
		}
		return validateMapSize(val, depth+1)
	case []any:
		if len(val) > maxDataKeys {
			return fmt.Errorf("%w: device data array too large", ErrInvalid)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks a user create payload.
func (in *UserInput) Validate() error {
	if err := rejectID(KindUser, in.ID); err != nil {
		return err
	}
	if err := validateName(KindUser, in.Name); err != nil {
		return err
	}
	return validateEmail(in.Email)
}

// Validate checks a user update payload.
func (p *UserPatch) Validate() error {
	if err := rejectID(KindUser, p.ID); err != nil {
		return err
	}
	if p.Name != nil {
		if err := validateName(KindUser, *p.Name); err != nil {
			return err
		}
	}
	if p.Email != nil {
		return validateEmail(*p.Email)
	}
	return nil
}

// Validate checks a house payload and every floor, room and device inside it.
func (in *HouseInput) Validate() error {
	if err := rejectID(KindHouse, in.ID); err != nil {
		return err
	}
	if err := validateName(KindHouse, in.Name); err != nil {
		return err
	}
	if err := validateMetadata(KindHouse, in.Metadata); err != nil {
		return err
	}
	if len(in.Floors) > maxChildrenInline {
		return fmt.Errorf("%w: more than %d floors inline", ErrInvalid, maxChildrenInline)
	}
	for i := range in.Floors {
		if err := in.Floors[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a floor payload and every room and device inside it.
func (in *FloorInput) Validate() error {
	if err := rejectID(KindFloor, in.ID); err != nil {
		return err
	}
	if err := validateName(KindFloor, in.Name); err != nil {
		return err
	}
	if err := validateMetadata(KindFloor, in.Metadata); err != nil {
		return err
	}
	if len(in.Rooms) > maxChildrenInline {
		return fmt.Errorf("%w: more than %d rooms inline", ErrInvalid, maxChildrenInline)
	}
	for i := range in.Rooms {
		if err := in.Rooms[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a room payload and every device inside it.
func (in *RoomInput) Validate() error {
	if err := rejectID(KindRoom, in.ID); err != nil {
		return err
	}
	if err := validateName(KindRoom, in.Name); err != nil {
		return err
	}
	if err := validateMetadata(KindRoom, in.Metadata); err != nil {
		return err
	}
	if len(in.Devices) > maxChildrenInline {
		return fmt.Errorf("%w: more than %d devices inline", ErrInvalid, maxChildrenInline)
	}
	for i := range in.Devices {
		if err := in.Devices[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a device create payload.
func (in *DeviceInput) Validate() error {
	if err := rejectID(KindDevice, in.ID); err != nil {
		return err
	}
	if err := validateName(KindDevice, in.Name); err != nil {
		return err
	}
	if err := validateText(KindDevice, "type", in.Type); err != nil {
		return err
	}
	return ValidateData(in.Data)
}

// validateLocationPatch checks a house, floor or room update payload.
func validateLocationPatch(kind Kind, p LocationPatch) error {
	if err := rejectID(kind, p.ID); err != nil {
		return err
	}
	if p.Name != nil {
		if err := validateName(kind, *p.Name); err != nil {
			return err
		}
	}
	return validateMetadata(kind, p.Metadata)
}

// Validate checks a device update payload.
func (p *DevicePatch) Validate() error {
	if err := rejectID(KindDevice, p.ID); err != nil {
		return err
	}
	if p.Name != nil {
		if err := validateName(KindDevice, *p.Name); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if err := validateText(KindDevice, "type", *p.Type); err != nil {
			return err
		}
	}
	return ValidateData(p.Data)
}
